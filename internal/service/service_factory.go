package service

import (
	"go.uber.org/zap"

	"guest-access/internal/audit"
	"guest-access/internal/hashing"
	"guest-access/internal/identity"
	"guest-access/internal/login"
	redisrepo "guest-access/internal/repository/redis"
	"guest-access/internal/repository/scylla"
	"guest-access/internal/session"
	"guest-access/internal/upgrade"
	"guest-access/internal/verification"
)

// ServiceFactory wires the verification components, the login machine,
// and the upgrade pipeline into the guest service.
type ServiceFactory struct {
	users        scylla.UserStore
	reservations scylla.ReservationStore
	links        scylla.MagicLinkStore
	tempUsers    scylla.TempUserStore
	flows        *redisrepo.FlowCache
	attempts     *redisrepo.AttemptCache
	provider     identity.Provider
	codec        *session.Codec
	recorder     *audit.Recorder
	logger       *zap.Logger

	guestService *GuestService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	users scylla.UserStore,
	reservations scylla.ReservationStore,
	links scylla.MagicLinkStore,
	tempUsers scylla.TempUserStore,
	flows *redisrepo.FlowCache,
	attempts *redisrepo.AttemptCache,
	provider identity.Provider,
	codec *session.Codec,
	recorder *audit.Recorder,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		users:        users,
		reservations: reservations,
		links:        links,
		tempUsers:    tempUsers,
		flows:        flows,
		attempts:     attempts,
		provider:     provider,
		codec:        codec,
		recorder:     recorder,
		logger:       logger,
	}
}

// GuestService returns the guest service instance (singleton)
func (f *ServiceFactory) GuestService() *GuestService {
	if f.guestService == nil {
		hasher := hashing.NewPinHasher(hashing.DefaultParams)
		f.guestService = NewGuestService(Deps{
			Resolver:   verification.NewResolver(f.links, f.reservations, f.logger),
			Matcher:    verification.NewMatcher(f.reservations, f.logger),
			Classifier: verification.NewClassifier(f.tempUsers, f.links, f.logger),
			Machine:    login.NewMachine(f.users, f.flows, f.attempts, f.provider, hasher, f.logger),
			Pipeline:   upgrade.NewPipeline(f.users, f.tempUsers, f.provider, f.logger),
			Users:      f.users,
			TempUsers:  f.tempUsers,
			Flows:      f.flows,
			Provider:   f.provider,
			Codec:      f.codec,
			Recorder:   f.recorder,
			Logger:     f.logger,
		})
	}
	return f.guestService
}

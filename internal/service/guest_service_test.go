package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"guest-access/internal/audit"
	"guest-access/internal/hashing"
	"guest-access/internal/identity"
	"guest-access/internal/login"
	"guest-access/internal/models"
	"guest-access/internal/repository/scylla"
	"guest-access/internal/session"
	"guest-access/internal/token"
	"guest-access/internal/upgrade"
	"guest-access/internal/util"
	"guest-access/internal/verification"
)

// memStore is an in-memory stand-in for the persistent store, shared by
// all four repository interfaces.
type memStore struct {
	users        map[string]*models.User
	reservations map[string]*models.Reservation
	links        map[string]*models.MagicLinkToken
	properties   map[string]*models.Property
	tempUsers    map[string]*models.TemporaryUser

	// role sets that actually reached UpdateUser; the maps above share
	// pointers with callers, so stored state alone cannot prove a write
	roleWrites [][]string
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[string]*models.User{},
		reservations: map[string]*models.Reservation{},
		links:        map[string]*models.MagicLinkToken{},
		properties:   map[string]*models.Property{},
		tempUsers:    map[string]*models.TemporaryUser{},
	}
}

func (m *memStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return nil, scylla.ErrNotFound
}

func (m *memStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	for _, u := range m.users {
		if u.PhoneNumber == phone {
			return u, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email != "" && u.Email == email {
			return u, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (m *memStore) CreateUser(ctx context.Context, user *models.User) error {
	m.users[user.UserID] = user
	return nil
}

func (m *memStore) UpdateUser(ctx context.Context, userID string, update scylla.UserUpdate) (bool, error) {
	u, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	if update.PhoneNumber != nil {
		u.PhoneNumber = *update.PhoneNumber
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Roles != nil {
		u.Roles = update.Roles
		m.roleWrites = append(m.roleWrites, update.Roles)
	}
	if update.ReservationIDs != nil {
		u.ReservationIDs = update.ReservationIDs
	}
	if update.PinHash != nil {
		u.PinHash = *update.PinHash
	}
	if update.PinSalt != nil {
		u.PinSalt = *update.PinSalt
	}
	if update.HasDefaultPin != nil {
		u.HasDefaultPin = *update.HasDefaultPin
	}
	if update.LastLogin != nil {
		u.LastLogin = update.LastLogin
	}
	return true, nil
}

func (m *memStore) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	if r, ok := m.reservations[reservationID]; ok {
		return r, nil
	}
	return nil, scylla.ErrNotFound
}

func (m *memStore) FindReservationsByPropertyAndPhoneSuffix(ctx context.Context, propertyID, last4 string) ([]*models.Reservation, error) {
	var out []*models.Reservation
	for _, r := range m.reservations {
		if r.PropertyID != propertyID {
			continue
		}
		if r.GuestPhoneLast4 == last4 {
			out = append(out, r)
			continue
		}
		for _, c := range r.AdditionalContacts {
			if util.PhoneLast4(c.Phone) == last4 {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) GetMagicLink(ctx context.Context, tokenHash string) (*models.MagicLinkToken, error) {
	if l, ok := m.links[tokenHash]; ok {
		return l, nil
	}
	return nil, scylla.ErrNotFound
}

func (m *memStore) UpdateMagicLink(ctx context.Context, tokenHash string, update scylla.MagicLinkUpdate) error {
	l, ok := m.links[tokenHash]
	if !ok {
		return scylla.ErrNotFound
	}
	if update.Status != nil {
		l.Status = *update.Status
	}
	if update.TempUserID != nil {
		l.TempUserID = *update.TempUserID
	}
	if update.VerificationAttempts != nil {
		l.VerificationAttempts = *update.VerificationAttempts
	}
	return nil
}

func (m *memStore) GetPropertyByMagicLinkToken(ctx context.Context, tokenHash string) (*models.Property, error) {
	l, ok := m.links[tokenHash]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	if p, ok := m.properties[l.PropertyID]; ok {
		return p, nil
	}
	return nil, scylla.ErrNotFound
}

func (m *memStore) CreateTemporaryUser(ctx context.Context, tempUser *models.TemporaryUser) error {
	if existing, ok := m.tempUsers[tempUser.TempUserID]; ok {
		*tempUser = *existing
		return nil
	}
	m.tempUsers[tempUser.TempUserID] = tempUser
	return nil
}

func (m *memStore) GetTemporaryUser(ctx context.Context, tempUserID string) (*models.TemporaryUser, error) {
	if t, ok := m.tempUsers[tempUserID]; ok {
		return t, nil
	}
	return nil, scylla.ErrNotFound
}

func (m *memStore) GetTemporaryUserByPhone(ctx context.Context, phone string) (*models.TemporaryUser, error) {
	for _, t := range m.tempUsers {
		if t.Phone == phone {
			return t, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (m *memStore) UpdateTemporaryUser(ctx context.Context, tempUserID string, update scylla.TempUserUpdate) error {
	t, ok := m.tempUsers[tempUserID]
	if !ok {
		return scylla.ErrNotFound
	}
	if update.DisplayName != nil {
		t.DisplayName = *update.DisplayName
	}
	if update.Phone != nil {
		t.Phone = *update.Phone
	}
	if update.ReservationIDs != nil {
		t.ReservationIDs = update.ReservationIDs
	}
	if update.AccessDisabled != nil {
		t.AccessDisabled = *update.AccessDisabled
	}
	if update.MigrationStatus != nil {
		t.MigrationStatus = *update.MigrationStatus
	}
	if update.UpgradedUserID != nil {
		t.UpgradedUserID = *update.UpgradedUserID
	}
	return nil
}

type memFlows struct {
	flows map[string]*models.PendingFlow
}

func (f *memFlows) SetFlow(ctx context.Context, flowID string, flow *models.PendingFlow) error {
	if err := flow.Validate(); err != nil {
		return err
	}
	f.flows[flowID] = flow
	return nil
}

func (f *memFlows) GetFlow(ctx context.Context, flowID string) (*models.PendingFlow, error) {
	if flow, ok := f.flows[flowID]; ok {
		return flow, nil
	}
	return nil, ErrFlowExpired
}

func (f *memFlows) GetFlowOfKind(ctx context.Context, flowID string, kind models.FlowKind) (*models.PendingFlow, error) {
	flow, err := f.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if flow.Kind != kind {
		return nil, models.ErrFlowKindMismatch
	}
	return flow, nil
}

func (f *memFlows) ClearFlow(ctx context.Context, flowID string) error {
	delete(f.flows, flowID)
	return nil
}

type memOtps struct {
	issued map[string]int
}

func (m *memOtps) MarkOtpIssued(ctx context.Context, flowID string) (int, error) {
	m.issued[flowID]++
	return m.issued[flowID], nil
}

func (m *memOtps) OtpIssued(ctx context.Context, flowID string) (bool, error) {
	return m.issued[flowID] > 0, nil
}

func (m *memOtps) ClearOtp(ctx context.Context, flowID string) error {
	delete(m.issued, flowID)
	return nil
}

type scriptedProvider struct {
	identity *identity.Identity
	err      error
	codes    []string
}

func (p *scriptedProvider) VerifyIDToken(ctx context.Context, idToken string) (*identity.Identity, error) {
	return p.identity, p.err
}

func (p *scriptedProvider) RequestCode(ctx context.Context, phone string) error {
	p.codes = append(p.codes, phone)
	return nil
}

type fixture struct {
	service  *GuestService
	store    *memStore
	flows    *memFlows
	provider *scriptedProvider
	caller   Caller
}

func newFixture() *fixture {
	logger := zap.NewNop()
	store := newMemStore()
	flows := &memFlows{flows: map[string]*models.PendingFlow{}}
	provider := &scriptedProvider{}
	hasher := hashing.NewPinHasher(hashing.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	codec := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"), false, 0)
	recorder := audit.NewRecorder(nil, nil, logger)

	svc := NewGuestService(Deps{
		Resolver:   verification.NewResolver(store, store, logger),
		Matcher:    verification.NewMatcher(store, logger),
		Classifier: verification.NewClassifier(store, store, logger),
		Machine:    login.NewMachine(store, flows, &memOtps{issued: map[string]int{}}, provider, hasher, logger),
		Pipeline:   upgrade.NewPipeline(store, store, provider, logger),
		Users:      store,
		TempUsers:  store,
		Flows:      flows,
		Provider:   provider,
		Codec:      codec,
		Recorder:   recorder,
		Logger:     logger,
	})

	return &fixture{
		service:  svc,
		store:    store,
		flows:    flows,
		provider: provider,
		caller:   Caller{FlowID: "browser-1", Fingerprint: "fp-1", RemoteAddr: "203.0.113.5:1234"},
	}
}

func (f *fixture) seedPropertyLink(rawToken, propertyID string) string {
	hash := token.Hash(rawToken)
	f.store.properties[propertyID] = &models.Property{PropertyID: propertyID, Name: "Seaside Loft"}
	f.store.links[hash] = &models.MagicLinkToken{
		TokenHash:  hash,
		PropertyID: propertyID,
		Status:     models.TokenStatusActive,
	}
	return hash
}

func TestWeakSecretNewGuestFullFlow(t *testing.T) {
	f := newFixture()
	f.seedPropertyLink("tok-1", "prop-1")
	f.store.reservations["res-1"] = &models.Reservation{
		ReservationID:   "res-1",
		PropertyID:      "prop-1",
		GuestName:       "Ana",
		GuestPhone:      "+15551230001",
		GuestPhoneLast4: "0001",
	}
	ctx := context.Background()

	result, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-1", "0001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusNameCollection {
		t.Fatalf("expected a nameless match to route to name collection, got %s", result.Status)
	}

	// Name, no phone: session issued directly for the temporary identity.
	result, err = f.service.CollectIdentity(ctx, f.caller, "Ana Lima", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusGranted {
		t.Fatalf("expected granted, got %s", result.Status)
	}
	if result.Session == nil || result.Session.Redirect != "/guest/dashboard" {
		t.Fatalf("expected a guest dashboard session, got %+v", result.Session)
	}

	payload, err := f.service.ValidateSession(result.Session.Token, f.caller.Fingerprint)
	if err != nil {
		t.Fatalf("issued session failed validation: %v", err)
	}
	wantID := token.TempUserID(token.Hash("tok-1"))
	if payload.UserID != wantID {
		t.Errorf("expected the deterministic temp id as subject, got %s", payload.UserID)
	}

	// Same token again: the identity now has a name, so access is
	// immediate.
	result, err = f.service.SubmitWeakSecret(ctx, f.caller, "tok-1", "0001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusGranted {
		t.Errorf("expected direct access for a named identity, got %s", result.Status)
	}
	if result.DisplayName != "Ana Lima" {
		t.Errorf("expected the collected name, got %q", result.DisplayName)
	}
}

func TestWeakSecretDisambiguation(t *testing.T) {
	f := newFixture()
	f.seedPropertyLink("tok-2", "prop-2")
	f.store.reservations["res-a"] = &models.Reservation{
		ReservationID: "res-a", PropertyID: "prop-2", GuestName: "Ana",
		GuestPhone: "+15550011234", GuestPhoneLast4: "1234",
	}
	f.store.reservations["res-b"] = &models.Reservation{
		ReservationID: "res-b", PropertyID: "prop-2", GuestName: "Ben",
		GuestPhone: "+15559871234", GuestPhoneLast4: "1234",
	}
	ctx := context.Background()

	result, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-2", "1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusDisambiguation {
		t.Fatalf("expected disambiguation, got %s", result.Status)
	}
	if len(result.Choices) != 2 {
		t.Fatalf("expected exactly 2 choices, got %d", len(result.Choices))
	}

	result, err = f.service.SelectReservation(ctx, f.caller, "tok-2", "res-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusNameCollection {
		t.Errorf("expected name collection after selection, got %s", result.Status)
	}

	// The successful selection replaced the disambiguation flow, so a
	// second selection has nothing to act on.
	if _, err := f.service.SelectReservation(ctx, f.caller, "tok-2", "res-a"); !errors.Is(err, ErrFlowExpired) {
		t.Errorf("expected the selection flow consumed, got %v", err)
	}
}

func TestWeakSecretLockout(t *testing.T) {
	f := newFixture()
	f.seedPropertyLink("tok-3", "prop-3")
	ctx := context.Background()

	for i := 0; i < models.MaxVerificationAttempts-1; i++ {
		result, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-3", "0000")
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i+1, err)
		}
		if result.Status != StatusRejected {
			t.Fatalf("attempt %d: expected rejected, got %s", i+1, result.Status)
		}
		if want := models.MaxVerificationAttempts - i - 1; result.AttemptsRemaining != want {
			t.Errorf("attempt %d: expected %d remaining, got %d", i+1, want, result.AttemptsRemaining)
		}
	}

	result, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-3", "0000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusLocked {
		t.Fatalf("expected the fifth failure to lock, got %s", result.Status)
	}

	// The sixth attempt is rejected at entry even if it were correct.
	if _, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-3", "0000"); !errors.Is(err, verification.ErrTooManyAttempts) {
		t.Errorf("expected ErrTooManyAttempts on a locked token, got %v", err)
	}
}

func TestCollectIdentityWithPhoneStartsUpgrade(t *testing.T) {
	f := newFixture()
	f.seedPropertyLink("tok-4", "prop-4")
	f.store.reservations["res-4"] = &models.Reservation{
		ReservationID: "res-4", PropertyID: "prop-4", GuestName: "Dana",
		GuestPhone: "+15550440001", GuestPhoneLast4: "0001",
	}
	ctx := context.Background()

	if _, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-4", "0001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := f.service.CollectIdentity(ctx, f.caller, "Dana Reis", "+1 555-044-0001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusVerificationStarted {
		t.Fatalf("expected verification started, got %s", result.Status)
	}
	if len(f.provider.codes) != 1 || f.provider.codes[0] != "+15550440001" {
		t.Fatalf("expected a code sent to the normalized phone, got %v", f.provider.codes)
	}

	f.provider.identity = &identity.Identity{SubjectID: "subj-4", Phone: "+15550440001"}
	result, err = f.service.CompleteStrongVerification(ctx, f.caller, "provider-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusGranted {
		t.Fatalf("expected granted, got %s", result.Status)
	}

	user, err := f.store.GetUser(ctx, "subj-4")
	if err != nil {
		t.Fatalf("expected a durable account: %v", err)
	}
	if user.Name != "Dana Reis" {
		t.Errorf("expected the collected name on the account, got %q", user.Name)
	}
	if !user.HasReservation("res-4") {
		t.Errorf("expected the reservation attached, got %v", user.ReservationIDs)
	}

	temp, err := f.store.GetTemporaryUser(ctx, token.TempUserID(token.Hash("tok-4")))
	if err != nil {
		t.Fatalf("expected the temporary identity kept: %v", err)
	}
	if !temp.IsUpgraded() || temp.UpgradedUserID != "subj-4" {
		t.Errorf("expected the temporary identity flagged upgraded, got %+v", temp)
	}
}

func TestMigratedUserConfirmation(t *testing.T) {
	f := newFixture()
	hash := f.seedPropertyLink("tok-5", "prop-5")
	f.store.reservations["res-5"] = &models.Reservation{
		ReservationID: "res-5", PropertyID: "prop-5", GuestName: "Eva",
		GuestPhone: "+15550550001", GuestPhoneLast4: "0001",
	}
	tempID := token.TempUserID(hash)
	f.store.tempUsers[tempID] = &models.TemporaryUser{
		TempUserID:      tempID,
		TokenHash:       hash,
		DisplayName:     "Eva",
		Phone:           "+15550550001",
		MigrationStatus: models.MigrationUpgraded,
		UpgradedUserID:  "user-eva",
	}
	f.store.users["user-eva"] = &models.User{
		UserID:      "user-eva",
		PhoneNumber: "+15550550001",
		Name:        "Eva Sol",
		Roles:       []string{"guest"},
		AccountType: models.AccountTypePermanent,
	}
	ctx := context.Background()

	result, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-5", "0001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusConfirmIdentity {
		t.Fatalf("expected an identity confirmation, got %s", result.Status)
	}

	// "Yes": strong verification against the durable account.
	result, err = f.service.ConfirmMigratedUser(ctx, f.caller, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusVerificationStarted {
		t.Fatalf("expected verification started, got %s", result.Status)
	}

	f.provider.identity = &identity.Identity{SubjectID: "subj-other", Phone: "+15550550001"}
	result, err = f.service.CompleteStrongVerification(ctx, f.caller, "provider-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, err := f.service.ValidateSession(result.Session.Token, f.caller.Fingerprint)
	if err != nil {
		t.Fatalf("session invalid: %v", err)
	}
	if payload.UserID != "user-eva" {
		t.Errorf("expected the existing account as subject, got %s", payload.UserID)
	}
	if !f.store.users["user-eva"].HasReservation("res-5") {
		t.Errorf("expected the reservation attached to the account")
	}
}

func TestMigratedLoginPersistsNormalizedRoles(t *testing.T) {
	// Scalar-era duplicate roles normalize to a set of the same length.
	// The guest role must still be written to the store, not only held
	// on the in-memory record.
	f := newFixture()
	hash := f.seedPropertyLink("tok-8", "prop-8")
	f.store.reservations["res-8"] = &models.Reservation{
		ReservationID: "res-8", PropertyID: "prop-8", GuestName: "Noa",
		GuestPhone: "+15550880001", GuestPhoneLast4: "0001",
	}
	tempID := token.TempUserID(hash)
	f.store.tempUsers[tempID] = &models.TemporaryUser{
		TempUserID:      tempID,
		TokenHash:       hash,
		DisplayName:     "Noa",
		Phone:           "+15550880001",
		MigrationStatus: models.MigrationUpgraded,
		UpgradedUserID:  "user-noa",
	}
	f.store.users["user-noa"] = &models.User{
		UserID:      "user-noa",
		PhoneNumber: "+15550880001",
		Name:        "Noa Reyes",
		Roles:       []string{"host", "host"},
		AccountType: models.AccountTypePermanent,
	}
	ctx := context.Background()

	if _, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-8", "0001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.service.ConfirmMigratedUser(ctx, f.caller, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.provider.identity = &identity.Identity{SubjectID: "subj-noa", Phone: "+15550880001"}
	if _, err := f.service.CompleteStrongVerification(ctx, f.caller, "provider-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var written []string
	for _, w := range f.store.roleWrites {
		if len(w) > 0 {
			written = w
		}
	}
	if written == nil {
		t.Fatal("expected the normalized role set written to the store")
	}
	for _, want := range []string{"guest", "host"} {
		found := false
		for _, r := range written {
			if r == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected role %q persisted, got %v", want, written)
		}
	}
}

func TestMigratedUserDeclined(t *testing.T) {
	f := newFixture()
	hash := f.seedPropertyLink("tok-6", "prop-6")
	f.store.reservations["res-6"] = &models.Reservation{
		ReservationID: "res-6", PropertyID: "prop-6", GuestName: "Eva",
		GuestPhone: "+15550660001", GuestPhoneLast4: "0001",
	}
	tempID := token.TempUserID(hash)
	f.store.tempUsers[tempID] = &models.TemporaryUser{
		TempUserID:      tempID,
		TokenHash:       hash,
		Phone:           "+15550660001",
		MigrationStatus: models.MigrationUpgraded,
		UpgradedUserID:  "user-eva",
	}
	ctx := context.Background()

	if _, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-6", "0001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := f.service.ConfirmMigratedUser(ctx, f.caller, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusNameCollection {
		t.Fatalf("expected name collection for the fresh identity, got %s", result.Status)
	}

	pending := f.flows.flows[f.caller.FlowID]
	if pending == nil || pending.Kind != models.FlowSignup {
		t.Fatal("expected a signup flow for the fresh identity")
	}
	if pending.Signup.TempUserID == tempID {
		t.Error("expected an identity unrelated to the upgraded one")
	}
	if _, err := f.store.GetTemporaryUser(ctx, pending.Signup.TempUserID); err != nil {
		t.Errorf("expected the fresh identity persisted: %v", err)
	}
}

func TestPhoneLoginOtpPath(t *testing.T) {
	f := newFixture()
	f.store.users["user-9"] = &models.User{
		UserID:      "user-9",
		PhoneNumber: "+15550990001",
		Name:        "Gil",
		Roles:       []string{"host", "guest"},
		AccountType: models.AccountTypePermanent,
	}
	ctx := context.Background()

	result, err := f.service.StartPhoneLogin(ctx, f.caller, "+1 555-099-0001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusVerificationStarted {
		t.Fatalf("expected OTP for a PIN-less account, got %s", result.Status)
	}

	f.provider.identity = &identity.Identity{SubjectID: "subj-9", Phone: "+15550990001"}
	result, err = f.service.SubmitLoginOtp(ctx, f.caller, "provider-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusPinCreation {
		t.Fatalf("expected a PIN creation prompt, got %s", result.Status)
	}

	result, err = f.service.CreateLoginPin(ctx, f.caller, "7531")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusGranted {
		t.Fatalf("expected granted, got %s", result.Status)
	}
	if result.Session.Redirect != "/host/dashboard" {
		t.Errorf("expected the host dashboard for a host account, got %s", result.Session.Redirect)
	}
}

func TestSessionRejectsWrongFingerprint(t *testing.T) {
	f := newFixture()
	f.seedPropertyLink("tok-7", "prop-7")
	f.store.reservations["res-7"] = &models.Reservation{
		ReservationID: "res-7", PropertyID: "prop-7", GuestName: "Hal",
		GuestPhone: "+15550770001", GuestPhoneLast4: "0001",
	}
	ctx := context.Background()

	if _, err := f.service.SubmitWeakSecret(ctx, f.caller, "tok-7", "0001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := f.service.CollectIdentity(ctx, f.caller, "Hal", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.service.ValidateSession(result.Session.Token, "other-device"); !errors.Is(err, session.ErrSessionInvalid) {
		t.Errorf("expected a fingerprint mismatch to fail closed, got %v", err)
	}
}

func TestResolveLinkExposesContext(t *testing.T) {
	f := newFixture()
	f.seedPropertyLink("tok-8", "prop-8")

	lctx, err := f.service.ResolveLink(context.Background(), "tok-8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lctx.Mode != "property" || lctx.DisplayName != "Seaside Loft" {
		t.Errorf("unexpected context %+v", lctx)
	}
	if lctx.AttemptsRemaining != models.MaxVerificationAttempts {
		t.Errorf("expected a fresh attempt budget, got %d", lctx.AttemptsRemaining)
	}

	if _, err := f.service.ResolveLink(context.Background(), "unknown"); !errors.Is(err, verification.ErrLinkNotFound) {
		t.Errorf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestFlowStateIsShortLived(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.CollectIdentity(ctx, f.caller, "Nobody", ""); !errors.Is(err, ErrFlowExpired) {
		t.Errorf("expected ErrFlowExpired without a pending flow, got %v", err)
	}
	if _, err := f.service.CompleteStrongVerification(ctx, f.caller, "tok"); !errors.Is(err, ErrFlowExpired) {
		t.Errorf("expected ErrFlowExpired without a pending flow, got %v", err)
	}
}

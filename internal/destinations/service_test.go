package destinations

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eventgatehq/eventgate-backend/internal/forward"
	"github.com/eventgatehq/eventgate-backend/pkg/crypto"
	"github.com/eventgatehq/eventgate-backend/pkg/db/models"
	pkgerrors "github.com/eventgatehq/eventgate-backend/pkg/errors"
	"github.com/eventgatehq/eventgate-backend/pkg/pagination"
)

type stubRepo struct {
	byID       map[uuid.UUID]*models.Destination
	createErr  error
	lastCreate *models.Destination
	lastUpdate *models.Destination
	deleted    []uuid.UUID
}

func newStubRepo() *stubRepo {
	return &stubRepo{byID: make(map[uuid.UUID]*models.Destination)}
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) Create(ctx context.Context, destination *models.Destination) error {
	if s.createErr != nil {
		return s.createErr
	}
	if destination.ID == uuid.Nil {
		destination.ID = uuid.New()
	}
	copied := *destination
	s.byID[destination.ID] = &copied
	s.lastCreate = &copied
	return nil
}

func (s *stubRepo) List(ctx context.Context, params pagination.Params) ([]models.Destination, int64, error) {
	out := make([]models.Destination, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, *d)
	}
	return out, int64(len(out)), nil
}

func (s *stubRepo) ListAll(ctx context.Context) ([]models.Destination, error) {
	rows, _, err := s.List(ctx, pagination.Params{})
	return rows, err
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Destination, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *d
	return &copied, nil
}

func (s *stubRepo) FindByName(ctx context.Context, name string) (*models.Destination, error) {
	for _, d := range s.byID {
		if d.Name == name {
			copied := *d
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) Update(ctx context.Context, destination *models.Destination) error {
	copied := *destination
	s.byID[destination.ID] = &copied
	s.lastUpdate = &copied
	return nil
}

func (s *stubRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, ok := s.byID[id]; !ok {
		return false, nil
	}
	delete(s.byID, id)
	s.deleted = append(s.deleted, id)
	return true, nil
}

func (s *stubRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Destination, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	d.Enabled = enabled
	copied := *d
	return &copied, nil
}

func (s *stubRepo) Totals(ctx context.Context) (*Totals, error) {
	totals := &Totals{Destinations: int64(len(s.byID))}
	for _, d := range s.byID {
		if d.Enabled {
			totals.Enabled++
		}
		totals.Deliveries += d.SuccessCount
		totals.Failures += d.FailureCount
	}
	return totals, nil
}

type stubSender struct {
	lastTarget  forward.Target
	lastPayload any
	result      forward.Result
}

func (s *stubSender) SendPayload(ctx context.Context, target forward.Target, payload any) forward.Result {
	s.lastTarget = target
	s.lastPayload = payload
	if s.result.Destination == "" {
		s.result.Destination = target.Name
	}
	return s.result
}

type stubRefresher struct {
	calls int
}

func (s *stubRefresher) RefreshRoutes(ctx context.Context) error {
	s.calls++
	return nil
}

func newTestService(t *testing.T, repo Repository) (Service, *Registry, *stubSender, *stubRefresher) {
	t.Helper()
	cipher, err := crypto.New("test-master-key")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	registry := NewRegistry(newTestLogger())
	sender := &stubSender{result: forward.Result{Success: true, StatusCode: 200}}
	refresher := &stubRefresher{}
	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Registry:  registry,
		Cipher:    cipher,
		Sender:    sender,
		Refresher: refresher,
		Logger:    newTestLogger(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, registry, sender, refresher
}

func TestCreateEncryptsSecretAndRegisters(t *testing.T) {
	repo := newStubRepo()
	svc, registry, _, refresher := newTestService(t, repo)

	created, err := svc.Create(context.Background(), CreateParams{
		Name:       "billing",
		URL:        "https://billing.example.com/hook",
		EventTypes: []string{"order.paid"},
		SecretKey:  "whsec_plain",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.SecretKeyEncrypted == nil || *created.SecretKeyEncrypted == "whsec_plain" {
		t.Fatalf("secret not encrypted at rest: %v", created.SecretKeyEncrypted)
	}
	if !crypto.IsEncrypted(*created.SecretKeyEncrypted) {
		t.Fatalf("stored secret is not an envelope: %s", *created.SecretKeyEncrypted)
	}
	if created.Method != "POST" || !created.Enabled {
		t.Fatalf("defaults not applied: %+v", created)
	}

	snap := registry.Snapshot()
	if len(snap) != 1 || snap[0].Target.Name != "billing" {
		t.Fatalf("destination not registered: %+v", snap)
	}
	if refresher.calls != 1 {
		t.Fatalf("expected one route refresh, got %d", refresher.calls)
	}
}

func TestCreateRejectsSecretWithoutMasterKey(t *testing.T) {
	repo := newStubRepo()
	cipher, err := crypto.New("")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Registry: NewRegistry(newTestLogger()),
		Cipher:   cipher,
		Sender:   &stubSender{},
		Logger:   newTestLogger(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Create(context.Background(), CreateParams{
		Name:      "billing",
		URL:       "https://billing.example.com/hook",
		SecretKey: "whsec_plain",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateDuplicateNameConflicts(t *testing.T) {
	repo := newStubRepo()
	repo.createErr = errors.New(`duplicate key value violates unique constraint "destinations_name_key"`)
	svc, _, _, _ := newTestService(t, repo)

	_, err := svc.Create(context.Background(), CreateParams{
		Name: "billing",
		URL:  "https://billing.example.com/hook",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateKeepsStoredSecretWhenOmitted(t *testing.T) {
	repo := newStubRepo()
	svc, _, _, _ := newTestService(t, repo)

	created, err := svc.Create(context.Background(), CreateParams{
		Name:      "billing",
		URL:       "https://billing.example.com/hook",
		SecretKey: "whsec_plain",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stored := *created.SecretKeyEncrypted

	newURL := "https://billing.example.com/v2"
	updated, err := svc.Update(context.Background(), created.ID, UpdateParams{URL: &newURL})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.URL != newURL {
		t.Fatalf("url not updated: %s", updated.URL)
	}
	if updated.SecretKeyEncrypted == nil || *updated.SecretKeyEncrypted != stored {
		t.Fatal("omitted secret should keep the stored envelope")
	}

	empty := ""
	cleared, err := svc.Update(context.Background(), created.ID, UpdateParams{SecretKey: &empty})
	if err != nil {
		t.Fatalf("clear secret: %v", err)
	}
	if cleared.SecretKeyEncrypted != nil {
		t.Fatal("empty secret should clear the envelope")
	}
}

func TestDeleteRemovesRegistration(t *testing.T) {
	repo := newStubRepo()
	svc, registry, _, _ := newTestService(t, repo)

	created, err := svc.Create(context.Background(), CreateParams{
		Name: "billing",
		URL:  "https://billing.example.com/hook",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if registry.Len() != 0 {
		t.Fatal("registration should be gone after delete")
	}

	err = svc.Delete(context.Background(), created.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestToggleFlipsEnabledEverywhere(t *testing.T) {
	repo := newStubRepo()
	svc, registry, _, _ := newTestService(t, repo)

	created, err := svc.Create(context.Background(), CreateParams{
		Name: "billing",
		URL:  "https://billing.example.com/hook",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	toggled, err := svc.Toggle(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggled.Enabled {
		t.Fatal("toggle should disable an enabled destination")
	}
	if snap := registry.Snapshot(); snap[0].Enabled {
		t.Fatal("registry entry should be disabled too")
	}
	if registry.Len() != 1 {
		t.Fatal("disabled destination must stay registered")
	}
}

func TestTestSendUsesStoredTarget(t *testing.T) {
	repo := newStubRepo()
	svc, _, sender, _ := newTestService(t, repo)

	created, err := svc.Create(context.Background(), CreateParams{
		Name:      "billing",
		URL:       "https://billing.example.com/hook",
		SecretKey: "whsec_plain",
		Config:    map[string]any{"headers": map[string]any{"X-Env": "test"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := svc.Test(context.Background(), created.ID, TestParams{EventName: "ping"})
	if err != nil {
		t.Fatalf("test send: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success result: %+v", result)
	}
	if sender.lastTarget.URL != created.URL {
		t.Fatalf("test send hit wrong target: %s", sender.lastTarget.URL)
	}
	if sender.lastTarget.SecretEncrypted == "" {
		t.Fatal("test send should carry the stored envelope for signing")
	}
	if sender.lastTarget.Headers["X-Env"] != "test" {
		t.Fatalf("config headers not applied: %+v", sender.lastTarget.Headers)
	}
}

func TestStatsAggregates(t *testing.T) {
	repo := newStubRepo()
	svc, _, _, _ := newTestService(t, repo)

	for _, name := range []string{"a", "b"} {
		if _, err := svc.Create(context.Background(), CreateParams{
			Name: name,
			URL:  "https://example.com/" + name,
		}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Totals.Destinations != 2 || stats.Totals.Enabled != 2 {
		t.Fatalf("unexpected totals: %+v", stats.Totals)
	}
	if len(stats.Destinations) != 2 {
		t.Fatalf("expected per-destination rows: %+v", stats.Destinations)
	}
}

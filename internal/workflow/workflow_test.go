package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tunehub/paramlens/internal/apperr"
	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/reconcile"
	"github.com/tunehub/paramlens/internal/session"
	"github.com/tunehub/paramlens/internal/store"
	"github.com/tunehub/paramlens/internal/testutil"
	"github.com/tunehub/paramlens/internal/workflow"
)

var key = models.ParamKey{ModuleType: models.ModuleECM, ParamID: "12600"}

func TestSubmit_PrivilegedWritesCanonical(t *testing.T) {
	st := testutil.TestStore(t)
	sess := testutil.SignedIn(t, st, testutil.Moderator())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	c, err := svc.Submit(ctx, sess, key, reconcile.Payload{
		Name: "Main Spark", Details: "base table",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != models.StatusApproved {
		t.Errorf("status = %q, want approved", c.Status)
	}

	p, err := st.GetParameter(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Main Spark" || p.UpdatedBy != "mod@example.com" || p.ApprovedBy != "mod@example.com" {
		t.Errorf("canonical = %+v", p)
	}

	if _, err := st.GetPending(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("privileged submit must not create a pending entry, got %v", err)
	}
}

func TestSubmit_UnprivilegedQueuesPending(t *testing.T) {
	st := testutil.TestStore(t)
	sess := testutil.SignedIn(t, st, testutil.Contributor())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	c, err := svc.Submit(ctx, sess, key, reconcile.Payload{Details: "my notes"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", c.Status)
	}

	if _, err := st.GetParameter(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unprivileged submit must not touch canonical, got %v", err)
	}
	got, err := st.GetPending(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got.SubmittedBy != "user@example.com" {
		t.Errorf("submitted_by = %q", got.SubmittedBy)
	}
}

func TestSubmit_NoIdentity(t *testing.T) {
	st := testutil.TestStore(t)
	sess := session.New(st, testutil.Logger())
	svc := workflow.NewService(st, testutil.Logger())

	_, err := svc.Submit(context.Background(), sess, key, reconcile.Payload{Details: "x"})
	if !errors.Is(err, apperr.ErrNoIdentity) {
		t.Errorf("err = %v, want ErrNoIdentity", err)
	}
}

func TestSubmit_NoChanges(t *testing.T) {
	st := testutil.TestStore(t)
	sess := testutil.SignedIn(t, st, testutil.Moderator())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	payload := reconcile.Payload{Name: "Main Spark", Details: "base table"}
	if _, err := svc.Submit(ctx, sess, key, payload); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Submit(ctx, sess, key, payload)
	if !errors.Is(err, apperr.ErrNoChanges) {
		t.Errorf("err = %v, want ErrNoChanges on identical resubmit", err)
	}
}

func TestSubmit_SnapshotsOldValue(t *testing.T) {
	st := testutil.TestStore(t)
	sess := testutil.SignedIn(t, st, testutil.Contributor())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	if err := st.UpsertParameter(ctx, models.Parameter{
		Key: key, Details: "fan on at 90", UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	c, err := svc.Submit(ctx, sess, key, reconcile.Payload{Details: "fan on at 85"})
	if err != nil {
		t.Fatal(err)
	}
	if c.OldValue != "fan on at 90" || c.NewValue != "fan on at 85" {
		t.Errorf("pair = (%q, %q)", c.OldValue, c.NewValue)
	}
	if c.OldDetails != "fan on at 90" || c.NewDetails != "fan on at 85" {
		t.Errorf("details pair = (%q, %q)", c.OldDetails, c.NewDetails)
	}
}

func TestSubmit_ExtractsPairFromDetailsBlob(t *testing.T) {
	st := testutil.TestStore(t)
	sess := testutil.SignedIn(t, st, testutil.Contributor())
	svc := workflow.NewService(st, testutil.Logger())

	c, err := svc.Submit(context.Background(), sess, key, reconcile.Payload{
		Details: "Old Value: 10, New Value: 20",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.OldValue != "10" || c.NewValue != "20" {
		t.Errorf("pair = (%q, %q), want (10, 20)", c.OldValue, c.NewValue)
	}
}

func TestSubmit_BlobExtractionWithExistingCanonical(t *testing.T) {
	st := testutil.TestStore(t)
	sess := testutil.SignedIn(t, st, testutil.Contributor())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	if err := st.UpsertParameter(ctx, models.Parameter{
		Key: key, Details: "fan curve rev 1", UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	// The snapshot must not displace what the blob itself names.
	c, err := svc.Submit(ctx, sess, key, reconcile.Payload{
		Details: "Old Value: 10, New Value: 20",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.OldValue != "10" || c.NewValue != "20" {
		t.Errorf("pair = (%q, %q), want (10, 20)", c.OldValue, c.NewValue)
	}
	if c.OldDetails != "fan curve rev 1" {
		t.Errorf("old details = %q, want the canonical snapshot", c.OldDetails)
	}
}

func TestSubmit_PrivilegedPartialUpdatePreservesFields(t *testing.T) {
	st := testutil.TestStore(t)
	sess := testutil.SignedIn(t, st, testutil.Moderator())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	if _, err := svc.Submit(ctx, sess, key, reconcile.Payload{
		Name: "Main Spark", Description: "base spark table", Details: "v1",
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Submit(ctx, sess, key, reconcile.Payload{Details: "v2"}); err != nil {
		t.Fatal(err)
	}

	p, err := st.GetParameter(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if p.Details != "v2" {
		t.Errorf("details = %q, want v2", p.Details)
	}
	if p.Name != "Main Spark" || p.Description != "base spark table" {
		t.Errorf("fields not carried by the resubmit must survive, got %+v", p)
	}
}

func TestSubmit_IDFormat(t *testing.T) {
	st := testutil.TestStore(t)
	sess := testutil.SignedIn(t, st, testutil.Contributor())
	svc := workflow.NewService(st, testutil.Logger())

	c, err := svc.Submit(context.Background(), sess, key, reconcile.Payload{Details: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(c.ID, "ecm-12600-") {
		t.Errorf("id = %q, want ecm-12600- prefix", c.ID)
	}
	if suffix := strings.TrimPrefix(c.ID, "ecm-12600-"); len(suffix) != 8 {
		t.Errorf("id suffix = %q, want 8 chars", suffix)
	}
}

func TestApprove_MovesPendingToCanonical(t *testing.T) {
	st := testutil.TestStore(t)
	userSess := testutil.SignedIn(t, st, testutil.Contributor())
	modSess := testutil.SignedIn(t, st, testutil.Moderator())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	c, err := svc.Submit(ctx, userSess, key, reconcile.Payload{Name: "Fan Temp", Details: "on at 85"})
	if err != nil {
		t.Fatal(err)
	}

	approved, err := svc.Approve(ctx, modSess, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if approved.Status != models.StatusApproved || approved.ApprovedBy != "mod@example.com" {
		t.Errorf("approved = %+v", approved)
	}

	p, err := st.GetParameter(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if p.UpdatedBy != "user@example.com" || p.ApprovedBy != "mod@example.com" {
		t.Errorf("canonical attribution = %+v", p)
	}
	if _, err := st.GetPending(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("pending entry must be removed after approval, got %v", err)
	}
}

func TestApprove_RequiresPrivilege(t *testing.T) {
	st := testutil.TestStore(t)
	userSess := testutil.SignedIn(t, st, testutil.Contributor())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	c, err := svc.Submit(ctx, userSess, key, reconcile.Payload{Details: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(ctx, userSess, c.ID); !errors.Is(err, apperr.ErrNotPrivileged) {
		t.Errorf("err = %v, want ErrNotPrivileged", err)
	}
}

func TestApprove_UnknownID(t *testing.T) {
	st := testutil.TestStore(t)
	modSess := testutil.SignedIn(t, st, testutil.Moderator())
	svc := workflow.NewService(st, testutil.Logger())

	_, err := svc.Approve(context.Background(), modSess, "ecm-1-missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReject_NeverTouchesCanonical(t *testing.T) {
	st := testutil.TestStore(t)
	userSess := testutil.SignedIn(t, st, testutil.Contributor())
	modSess := testutil.SignedIn(t, st, testutil.Moderator())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	c, err := svc.Submit(ctx, userSess, key, reconcile.Payload{Details: "bad idea"})
	if err != nil {
		t.Fatal(err)
	}

	rejected, err := svc.Reject(ctx, modSess, c.ID, "not verified")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != models.StatusRejected || rejected.RejectionReason != "not verified" {
		t.Errorf("rejected = %+v", rejected)
	}

	if _, err := st.GetParameter(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("rejection must not write canonical, got %v", err)
	}
	if _, err := st.GetPending(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("pending entry must be removed after rejection, got %v", err)
	}

	audit, err := st.RejectedSubmittedBy(ctx, "user@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(audit) != 1 || audit[0].RejectedBy != "mod@example.com" {
		t.Errorf("audit = %+v", audit)
	}
}

func TestListPending_RequiresPrivilege(t *testing.T) {
	st := testutil.TestStore(t)
	userSess := testutil.SignedIn(t, st, testutil.Contributor())
	svc := workflow.NewService(st, testutil.Logger())

	if _, err := svc.ListPending(context.Background(), userSess); !errors.Is(err, apperr.ErrNotPrivileged) {
		t.Errorf("err = %v, want ErrNotPrivileged", err)
	}
}

func TestListContributions_MergesAndSorts(t *testing.T) {
	st := testutil.TestStore(t)
	userSess := testutil.SignedIn(t, st, testutil.Contributor())
	modSess := testutil.SignedIn(t, st, testutil.Moderator())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	k1 := models.ParamKey{ModuleType: models.ModuleECM, ParamID: "1"}
	k2 := models.ParamKey{ModuleType: models.ModuleECM, ParamID: "2"}
	k3 := models.ParamKey{ModuleType: models.ModuleECM, ParamID: "3"}

	// Oldest: rejected. Middle: approved. Newest: still pending.
	c1, err := svc.Submit(ctx, userSess, k1, reconcile.Payload{Details: "first"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reject(ctx, modSess, c1.ID, "no"); err != nil {
		t.Fatal(err)
	}
	c2, err := svc.Submit(ctx, userSess, k2, reconcile.Payload{Details: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(ctx, modSess, c2.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Submit(ctx, userSess, k3, reconcile.Payload{Details: "third"}); err != nil {
		t.Fatal(err)
	}

	items, err := svc.ListContributions(ctx, userSess)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	statuses := map[models.Status]int{}
	for _, it := range items {
		statuses[it.Status]++
	}
	if statuses[models.StatusPending] != 1 || statuses[models.StatusApproved] != 1 || statuses[models.StatusRejected] != 1 {
		t.Errorf("statuses = %v", statuses)
	}
	for i := 1; i < len(items); i++ {
		if contributionSortTime(items[i-1]).Before(contributionSortTime(items[i])) {
			t.Errorf("items not sorted newest first at %d", i)
		}
	}
}

func contributionSortTime(c models.Contribution) time.Time {
	switch c.Status {
	case models.StatusRejected:
		if c.RejectedAt != nil {
			return *c.RejectedAt
		}
		return c.SubmittedAt
	case models.StatusApproved:
		if c.ApprovedAt != nil {
			return *c.ApprovedAt
		}
		return c.SubmittedAt
	default:
		return c.SubmittedAt
	}
}

func TestListContributions_BackfillsPair(t *testing.T) {
	st := testutil.TestStore(t)
	userSess := testutil.SignedIn(t, st, testutil.Contributor())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	// A record written before old/new tracking existed.
	if err := st.UpsertPending(ctx, models.Contribution{
		ID: "ecm-9-legacy", Key: models.ParamKey{ModuleType: models.ModuleECM, ParamID: "9"},
		Details:     "Old Value: 3, New Value: 4",
		SubmittedBy: "user@example.com", SubmittedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	items, err := svc.ListContributions(ctx, userSess)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("len = %d, want 1", len(items))
	}
	if items[0].OldValue != "3" || items[0].NewValue != "4" {
		t.Errorf("pair = (%q, %q), want backfilled (3, 4)", items[0].OldValue, items[0].NewValue)
	}
}

func TestGetParameter_CanonicalFirst(t *testing.T) {
	st := testutil.TestStore(t)
	userSess := testutil.SignedIn(t, st, testutil.Contributor())
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	if err := st.UpsertParameter(ctx, models.Parameter{
		Key: key, Name: "Main Spark", UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertPending(ctx, models.Contribution{
		ID: "ecm-12600-aaaa", Key: key, Name: "draft",
		SubmittedBy: "user@example.com", SubmittedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := svc.GetParameter(ctx, userSess, key)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusApproved || res.Parameter.Name != "Main Spark" {
		t.Errorf("result = %+v, want canonical record", res)
	}
}

func TestGetParameter_PendingVisibility(t *testing.T) {
	st := testutil.TestStore(t)
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	submitter := testutil.SignedIn(t, st, testutil.Contributor())
	if _, err := svc.Submit(ctx, submitter, key, reconcile.Payload{Details: "draft"}); err != nil {
		t.Fatal(err)
	}

	// Submitter sees their own pending entry.
	res, err := svc.GetParameter(ctx, submitter, key)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", res.Status)
	}

	// An unrelated plain user does not.
	other := models.Identity{UID: "user-2", Email: "other@example.com", Role: models.RoleUser}
	otherSess := testutil.SignedIn(t, st, other)
	if _, err := svc.GetParameter(ctx, otherSess, key); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}

	// A moderator does, even untrusted.
	reviewer := models.Identity{UID: "rev-1", Email: "rev@example.com", Role: models.RoleModerator}
	revSess := testutil.SignedIn(t, st, reviewer)
	if _, err := svc.GetParameter(ctx, revSess, key); err != nil {
		t.Errorf("moderator read failed: %v", err)
	}
}

// expiringStore fails each tagged write once with an expired credential.
type expiringStore struct {
	store.Store
	failures map[string]int
}

func (e *expiringStore) UpsertPending(ctx context.Context, c models.Contribution) error {
	if e.failures["pending"] > 0 {
		e.failures["pending"]--
		return apperr.ErrExpiredCredential
	}
	return e.Store.UpsertPending(ctx, c)
}

func (e *expiringStore) UpsertParameter(ctx context.Context, p models.Parameter) error {
	if e.failures["parameter"] > 0 {
		e.failures["parameter"]--
		return apperr.ErrExpiredCredential
	}
	return e.Store.UpsertParameter(ctx, p)
}

func TestSubmit_RetriesOnceAfterRefresh(t *testing.T) {
	base := testutil.TestStore(t)
	st := &expiringStore{Store: base, failures: map[string]int{"pending": 1}}
	refreshes := 0
	sess := testutil.SignedIn(t, base, testutil.Contributor(),
		session.WithRefresh(func(context.Context) error {
			refreshes++
			return nil
		}))
	svc := workflow.NewService(st, testutil.Logger())
	ctx := context.Background()

	c, err := svc.Submit(ctx, sess, key, reconcile.Payload{Details: "x"})
	if err != nil {
		t.Fatalf("retry after refresh should succeed: %v", err)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", refreshes)
	}
	if _, err := base.GetPendingByID(ctx, c.ID); err != nil {
		t.Errorf("pending entry missing after replay: %v", err)
	}
}

func TestSubmit_SingleRetryOnly(t *testing.T) {
	base := testutil.TestStore(t)
	st := &expiringStore{Store: base, failures: map[string]int{"pending": 2}}
	sess := testutil.SignedIn(t, base, testutil.Contributor(),
		session.WithRefresh(func(context.Context) error { return nil }))
	svc := workflow.NewService(st, testutil.Logger())

	_, err := svc.Submit(context.Background(), sess, key, reconcile.Payload{Details: "x"})
	if !errors.Is(err, apperr.ErrExpiredCredential) {
		t.Errorf("err = %v, want the expiry to surface after one replay", err)
	}
}

// deniedStore refuses pending writes outright.
type deniedStore struct {
	store.Store
}

func (d *deniedStore) UpsertPending(context.Context, models.Contribution) error {
	return apperr.ErrPermissionDenied
}

func TestSubmit_PermissionDeniedNoRetry(t *testing.T) {
	base := testutil.TestStore(t)
	st := &deniedStore{Store: base}
	refreshes := 0
	sess := testutil.SignedIn(t, base, testutil.Contributor(),
		session.WithRefresh(func(context.Context) error {
			refreshes++
			return nil
		}))
	svc := workflow.NewService(st, testutil.Logger())

	_, err := svc.Submit(context.Background(), sess, key, reconcile.Payload{Details: "x"})
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
	if refreshes != 0 {
		t.Errorf("refreshes = %d, want 0 on a denial", refreshes)
	}
}

func TestSubmit_RefreshFailureSurfacesOriginal(t *testing.T) {
	base := testutil.TestStore(t)
	st := &expiringStore{Store: base, failures: map[string]int{"pending": 1}}
	sess := testutil.SignedIn(t, base, testutil.Contributor()) // no refresh hook
	svc := workflow.NewService(st, testutil.Logger())

	_, err := svc.Submit(context.Background(), sess, key, reconcile.Payload{Details: "x"})
	if !errors.Is(err, apperr.ErrExpiredCredential) {
		t.Errorf("err = %v, want ErrExpiredCredential", err)
	}
}

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tunehub/paramlens/internal/apperr"
	"github.com/tunehub/paramlens/internal/models"
	"github.com/tunehub/paramlens/internal/testutil"
)

var key = models.ParamKey{ModuleType: models.ModuleECM, ParamID: "12600"}

func TestUsers_PutGetUpdate(t *testing.T) {
	st := testutil.TestStore(t)
	ctx := context.Background()

	id := models.Identity{UID: "u1", Email: "a@b.c", Screenname: "ax", Role: models.RoleUser}
	if err := st.PutUser(ctx, id); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Email != "a@b.c" || got.Role != models.RoleUser || got.Trusted {
		t.Errorf("user = %+v", got)
	}

	id.Role = models.RoleAdmin
	id.Trusted = true
	if err := st.PutUser(ctx, id); err != nil {
		t.Fatal(err)
	}
	got, err = st.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != models.RoleAdmin || !got.Trusted {
		t.Errorf("after update: %+v", got)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	st := testutil.TestStore(t)
	_, err := st.GetUser(context.Background(), "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestParameters_UpsertByNaturalKey(t *testing.T) {
	st := testutil.TestStore(t)
	ctx := context.Background()

	p := models.Parameter{
		Key:       key,
		Name:      "Main Spark",
		Details:   "base table",
		UpdatedBy: "a@b.c",
		UpdatedAt: time.Now().UTC(),
	}
	if err := st.UpsertParameter(ctx, p); err != nil {
		t.Fatal(err)
	}

	p.Details = "revised table"
	if err := st.UpsertParameter(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetParameter(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Details != "revised table" {
		t.Errorf("details = %q, want revised", got.Details)
	}

	// Same id under a different module type is a distinct record.
	other := p
	other.Key = models.ParamKey{ModuleType: models.ModuleTCM, ParamID: "12600"}
	other.Details = "tcm copy"
	if err := st.UpsertParameter(ctx, other); err != nil {
		t.Fatal(err)
	}
	got, err = st.GetParameter(ctx, other.Key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Details != "tcm copy" {
		t.Errorf("details = %q, want tcm copy", got.Details)
	}
}

func TestGetParameter_NotFound(t *testing.T) {
	st := testutil.TestStore(t)
	_, err := st.GetParameter(context.Background(), key)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestParametersUpdatedBy(t *testing.T) {
	st := testutil.TestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, by := range []string{"a@b.c", "a@b.c", "x@y.z"} {
		p := models.Parameter{
			Key:       models.ParamKey{ModuleType: models.ModuleECM, ParamID: string(rune('1' + i))},
			UpdatedBy: by,
			UpdatedAt: now,
		}
		if err := st.UpsertParameter(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := st.ParametersUpdatedBy(ctx, "a@b.c")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestPending_UpsertOverwritesSameKey(t *testing.T) {
	st := testutil.TestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := models.Contribution{
		ID: "ecm-12600-aaaa", Key: key,
		Details: "first take", SubmittedBy: "a@b.c", SubmittedAt: now,
	}
	if err := st.UpsertPending(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := first
	second.ID = "ecm-12600-bbbb"
	second.Details = "second take"
	if err := st.UpsertPending(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetPending(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "ecm-12600-bbbb" || got.Details != "second take" {
		t.Errorf("pending = %+v, want second take", got)
	}
	if got.Status != models.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}

	all, err := st.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("len = %d, want 1 entry per key", len(all))
	}
}

func TestPending_GetByIDAndDelete(t *testing.T) {
	st := testutil.TestStore(t)
	ctx := context.Background()

	c := models.Contribution{
		ID: "ecm-12600-aaaa", Key: key,
		OldValue: "10", NewValue: "20",
		SubmittedBy: "a@b.c", SubmittedAt: time.Now().UTC(),
	}
	if err := st.UpsertPending(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetPendingByID(ctx, "ecm-12600-aaaa")
	if err != nil {
		t.Fatal(err)
	}
	if got.OldValue != "10" || got.NewValue != "20" {
		t.Errorf("pair = (%q, %q)", got.OldValue, got.NewValue)
	}

	if err := st.DeletePending(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GetPending(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after delete", err)
	}
}

func TestRejected_AuditRetained(t *testing.T) {
	st := testutil.TestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := models.Contribution{
		ID: "ecm-12600-aaaa", Key: key,
		Details:     "bad idea",
		SubmittedBy: "a@b.c", SubmittedAt: now,
		RejectedBy: "mod@b.c", RejectedAt: &now, RejectionReason: "wrong table",
	}
	if err := st.AddRejected(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := st.RejectedSubmittedBy(ctx, "a@b.c")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	r := got[0]
	if r.Status != models.StatusRejected {
		t.Errorf("status = %q, want rejected", r.Status)
	}
	if r.RejectionReason != "wrong table" || r.RejectedBy != "mod@b.c" {
		t.Errorf("rejection metadata = %+v", r)
	}
}

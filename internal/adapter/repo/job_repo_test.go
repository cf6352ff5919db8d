package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"genqueue/internal/domain"
	"genqueue/internal/sqlinline"
)

const (
	testJobID       = "0b6f3c1e-2d4a-4e8b-9f1c-7a5d3e2b1c0f"
	testUserID      = "5c2a9e7d-1f3b-4c6d-8e0a-2b4d6f8a0c1e"
	testWorkspaceID = "9d8c7b6a-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubSQL struct {
	execTag  string
	execArgs []any
	query    string
	row      stubRow
}

func (s *stubSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.query = query
	s.execArgs = args
	return pgconn.NewCommandTag(s.execTag), nil
}

func (s *stubSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.query = query
	return s.row
}

func (s *stubSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func TestPatchTranslatesGuardAndReportsRows(t *testing.T) {
	sql := &stubSQL{execTag: "UPDATE 1"}
	r := NewJobRepository(sql)

	applied, err := r.Patch(context.Background(), testJobID, domain.FailedPatch("boom"))
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if !applied {
		t.Fatalf("expected patch to report applied")
	}
	if sql.query != sqlinline.QPatchJob {
		t.Fatalf("unexpected query used")
	}
	status, ok := sql.execArgs[1].(*string)
	if !ok || status == nil || *status != "failed" {
		t.Fatalf("status arg = %#v", sql.execArgs[1])
	}
	guard, ok := sql.execArgs[7].([]string)
	if !ok || strings.Join(guard, ",") != "queued,processing" {
		t.Fatalf("guard arg = %#v", sql.execArgs[7])
	}

	sql.execTag = "UPDATE 0"
	applied, err = r.Patch(context.Background(), testJobID, domain.FailedPatch("again"))
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if applied {
		t.Fatalf("guard miss should report not applied")
	}
}

func TestGetMapsNoRowsToNotFound(t *testing.T) {
	r := NewJobRepository(&stubSQL{})
	if _, err := r.Get(context.Background(), testJobID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := r.GetByProviderTask(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSettleSuccessReportsInsertedAsset(t *testing.T) {
	for _, tc := range []struct {
		count int64
		want  bool
	}{{1, true}, {0, false}} {
		sql := &stubSQL{row: stubRow{scan: func(dest ...any) error {
			*(dest[0].(*int64)) = tc.count
			return nil
		}}}
		r := NewJobRepository(sql)
		got, err := r.SettleSuccess(context.Background(), "job-1", &domain.Asset{ID: "asset-1", URL: "https://cdn/x.png"})
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if got != tc.want {
			t.Fatalf("settle = %v, want %v", got, tc.want)
		}
		if sql.query != sqlinline.QSettleJobSuccess {
			t.Fatalf("unexpected query used")
		}
	}
}

func TestMarkEnqueuedSendsIDs(t *testing.T) {
	sql := &stubSQL{execTag: "UPDATE 2"}
	r := NewJobRepository(sql)
	if err := r.MarkEnqueued(context.Background(), nil); err != nil || sql.query != "" {
		t.Fatalf("empty batch should not hit the database: %v %q", err, sql.query)
	}
	if err := r.MarkEnqueued(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if sql.query != sqlinline.QMarkJobsEnqueued {
		t.Fatalf("unexpected query used")
	}
	ids, ok := sql.execArgs[0].([]string)
	if !ok || strings.Join(ids, ",") != "a,b" {
		t.Fatalf("ids arg = %#v", sql.execArgs[0])
	}
}

type failSQL struct{ calls int }

func (s *failSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls++
	return pgconn.CommandTag{}, &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}
}

func (s *failSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.calls++
	return stubRow{scan: func(dest ...any) error {
		return &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}
	}}
}

func (s *failSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.calls++
	return nil, &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}
}

func TestMalformedIDsNeverReachTheDatabase(t *testing.T) {
	ctx := context.Background()
	sql := &failSQL{}
	jobs := NewJobRepository(sql)
	workspaces := NewWorkspaceRepository(sql)
	users := NewUserRepository(sql)

	if _, err := jobs.Get(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
	if applied, err := jobs.Patch(ctx, "abc", domain.FailedPatch("x")); applied || err != nil {
		t.Fatalf("Patch = %v, %v", applied, err)
	}
	if list, err := jobs.ListByWorkspace(ctx, "ws-1", 10); len(list) != 0 || err != nil {
		t.Fatalf("ListByWorkspace = %v, %v", list, err)
	}
	err := jobs.Create(ctx, &domain.Job{ID: testJobID, WorkspaceID: testWorkspaceID, CreatorID: testUserID, BoardID: "board-1", Status: domain.JobStatusQueued})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("Create err = %v, want ErrInvalidInput", err)
	}
	if ok, err := workspaces.IsMember(ctx, testUserID, "abc"); ok || err != nil {
		t.Fatalf("IsMember = %v, %v", ok, err)
	}
	if ok, err := workspaces.IsMember(ctx, "user-1", testWorkspaceID); ok || err != nil {
		t.Fatalf("IsMember = %v, %v", ok, err)
	}
	if _, err := workspaces.DefaultWorkspace(ctx, "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("DefaultWorkspace err = %v, want ErrNotFound", err)
	}
	if _, err := users.GetByID(ctx, "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID err = %v, want ErrNotFound", err)
	}
	if _, err := users.SetPlan(ctx, "user-1", domain.UserPlanPro); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("SetPlan err = %v, want ErrNotFound", err)
	}
	if sql.calls != 0 {
		t.Fatalf("database called %d times", sql.calls)
	}

	if _, err := jobs.Get(ctx, testJobID); err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("well formed id should reach the database, err = %v", err)
	}
}

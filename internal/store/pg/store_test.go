package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/call"
	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/reporting"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

var userCols = []string{"id", "email", "password_hash", "full_name", "designation", "organization_id",
	"current_branch_id", "role", "is_active", "created_at", "updated_at"}

func TestFindUserByEmailNormalizesAndMapsMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from users").WithArgs("ann@example.com").WillReturnError(sql.ErrNoRows)

	_, err := s.FindUserByEmail(context.Background(), "  Ann@Example.com ")
	if !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestFindUserByIDScansRow(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("from users").WithArgs("usr_1").WillReturnRows(sqlmock.NewRows(userCols).
		AddRow("usr_1", "ann@example.com", "hash", "Ann", "", "org_1", "br_1", "manager", true, now, now))

	u, err := s.FindUserByID(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u.Role != auth.RoleManager || u.CurrentBranchID != "br_1" || !u.IsActive {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestCreateOrganizationWithAdminEmailTaken(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into organizations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into users").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	err := s.CreateOrganizationWithAdmin(context.Background(),
		org.Organization{ID: "org_1", Name: "Acme"},
		auth.User{ID: "usr_1", Email: "a@b.c", Role: auth.RoleAdmin, OrganizationID: "org_1"})
	if !errors.Is(err, auth.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestInsertUserRejectsUnknownRole(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into organizations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	err := s.CreateOrganizationWithAdmin(context.Background(),
		org.Organization{ID: "org_1", Name: "Acme"},
		auth.User{ID: "usr_1", Email: "a@b.c", Role: auth.Role("owner"), OrganizationID: "org_1"})
	if err == nil || !strings.Contains(err.Error(), `unknown role "owner"`) {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestCreateInvitedMemberRollsBackWhenInviteUsed(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into branch_members").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("update invites").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.CreateInvitedMember(context.Background(),
		auth.User{ID: "usr_2", Email: "m@b.c", Role: auth.RoleManager},
		org.Invite{ID: "inv_1", BranchID: "br_1"}, time.Now())
	if !errors.Is(err, org.ErrInviteNotPending) {
		t.Fatalf("expected ErrInviteNotPending, got %v", err)
	}
}

func TestCreateBranchEnrollsCreator(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("insert into branches").
		WithArgs("br_1", "org_1", "North", "usr_1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into branch_members").WithArgs("usr_1", "br_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("update users set current_branch_id").WithArgs("usr_1", "br_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.CreateBranch(context.Background(), org.Branch{ID: "br_1", OrganizationID: "org_1", Name: "North",
		CreatedBy: "usr_1", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
}

func TestSetUserActiveMissingMember(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("update users").WithArgs("org_1", "usr_9", false).WillReturnError(sql.ErrNoRows)

	if _, err := s.SetUserActive(context.Background(), "org_1", "usr_9", false); !errors.Is(err, org.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestExpireInvitesReturnsCount(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("update invites").WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.ExpireInvites(context.Background(), time.Now())
	if err != nil || n != 3 {
		t.Fatalf("expire: n=%d err=%v", n, err)
	}
}

func TestGetLeadDecodesProfile(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()
	cols := []string{"id", "branch_id", "organization_id", "type", "status", "associated_agent", "known_to_agent",
		"meeting_date", "created_by_id", "created_by_name", "created_at", "updated_at",
		"pid", "data", "pcreated", "pupdated"}
	mock.ExpectQuery("from leads l").WithArgs("led_1", "org_1", "").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("led_1", "br_1", "org_1", "suspect", "Yet to Contact", nil, "friend", nil, "usr_1", "Ann", now, now,
			"pro_1", []byte(`{"full_name":"Raj","dependents":2}`), now, now))

	v, err := s.GetLead(context.Background(), "org_1", "led_1", "")
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	if v.Lead.AssociatedAgent != nil || v.Lead.KnownToAgent == nil || *v.Lead.KnownToAgent != "friend" {
		t.Fatalf("unexpected nullable fields %+v", v.Lead)
	}
	if v.Profile.FullName == nil || *v.Profile.FullName != "Raj" || v.Profile.Dependents == nil || *v.Profile.Dependents != 2 {
		t.Fatalf("profile not decoded: %+v", v.Profile)
	}
	if v.Profile.LeadID != "led_1" || v.Profile.BranchID != "br_1" {
		t.Fatalf("profile ownership not filled: %+v", v.Profile)
	}
}

func TestGetLeadNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from leads l").WillReturnError(sql.ErrNoRows)

	if _, err := s.GetLead(context.Background(), "org_1", "led_x", "usr_1"); !errors.Is(err, lead.ErrNotFound) {
		t.Fatalf("expected lead.ErrNotFound, got %v", err)
	}
}

func TestCreateLeadWritesAllRows(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into leads").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into lead_profiles").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into agents").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.CreateLead(context.Background(), lead.Lead{ID: "led_1"}, lead.ProfileRecord{ID: "pro_1"}, lead.Agent{ID: "agt_1"})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
}

func TestSoftDeleteLeadInvisible(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("update leads set deleted_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	deleted, err := s.SoftDeleteLead(context.Background(), "org_1", "led_1", "usr_2", time.Now())
	if err != nil || deleted {
		t.Fatalf("expected deleted=false, got %v err=%v", deleted, err)
	}
}

func TestSoftDeletePrompt(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("update prompts set deleted_at").WithArgs("prm_1", "org_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := s.SoftDeletePrompt(context.Background(), "org_1", "prm_1", time.Now())
	if err != nil || !deleted {
		t.Fatalf("expected deleted, got %v err=%v", deleted, err)
	}
}

func TestCreateSnapshotReturnsVersion(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into profile_snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))

	snap, err := s.CreateSnapshot(context.Background(), call.Snapshot{ID: "snp_1", LeadID: "led_1", Data: []byte(`{}`)})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Version != 4 || snap.ID != "snp_1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestCompleteCallMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("update calls c").
		WithArgs("cal_1", "hi", "{}", "2:05", int64(125), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, err := s.CompleteCall(context.Background(), call.Completion{
		CallID: "cal_1", Transcript: "hi", Duration: "2:05", DurationSeconds: 125, CompletedAt: time.Now(),
	})
	if !errors.Is(err, call.ErrNotFound) {
		t.Fatalf("expected call.ErrNotFound, got %v", err)
	}
}

func TestSetTranscriptKeyMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("update calls set transcript_key").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SetTranscriptKey(context.Background(), "cal_1", "k"); !errors.Is(err, call.ErrNotFound) {
		t.Fatalf("expected call.ErrNotFound, got %v", err)
	}
}

func TestFunnelCounts(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from events").
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g"}).AddRow(5, 4, 1, 3, 2, 1, 1))

	f, err := s.FunnelCounts(context.Background(), reporting.Scope{BranchID: "br_1"})
	if err != nil {
		t.Fatalf("funnel: %v", err)
	}
	if f.LeadCreatedSuspect != 5 || f.FirstMeetingScheduled != 3 || f.CallClosed != 1 {
		t.Fatalf("unexpected funnel %+v", f)
	}
}

func TestCallSeries(t *testing.T) {
	s, mock := newMock(t)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("date_trunc").WithArgs("br_1", sqlmock.AnyArg(), sqlmock.AnyArg(), "day", "call_started").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "count"}).AddRow(day, 3))
	mock.ExpectQuery("date_trunc").WithArgs("br_1", sqlmock.AnyArg(), sqlmock.AnyArg(), "day", "call_ended").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "minutes"}).AddRow(day, 7.5))

	g, err := s.CallSeries(context.Background(), reporting.Scope{BranchID: "br_1"}, reporting.Day)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(g.CallCount) != 1 || g.CallCount[0].CallCount != 3 {
		t.Fatalf("unexpected counts %+v", g.CallCount)
	}
	if len(g.TotalDurationMinutes) != 1 || g.TotalDurationMinutes[0].TotalDurationMinutes != 7.5 {
		t.Fatalf("unexpected durations %+v", g.TotalDurationMinutes)
	}
}

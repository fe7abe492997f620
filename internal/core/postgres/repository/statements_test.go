package repository

import (
	"strings"
	"testing"
	"time"

	"go-stepflow/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// dryRunDB builds statements against the postgres dialect without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=stepflow dbname=stepflow sslmode=disable"}), &gorm.Config{
		DryRun:                 true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)
	return db
}

// insertValues maps each column of a single-row INSERT to its bound value.
func insertValues(t *testing.T, stmt *gorm.Statement) map[string]any {
	t.Helper()
	sql := stmt.SQL.String()
	start, end := strings.Index(sql, "("), strings.Index(sql, ")")
	require.True(t, start >= 0 && end > start, sql)
	cols := strings.Split(sql[start+1:end], ",")
	require.GreaterOrEqual(t, len(stmt.Vars), len(cols), sql)
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		out[strings.Trim(strings.TrimSpace(c), `"`)] = stmt.Vars[i]
	}
	return out
}

func TestCreateStep_WritesFalseFlags(t *testing.T) {
	db := dryRunDB(t)
	step := domain.WorkflowStep{
		ID:          uuid.New(),
		WorkflowID:  uuid.New(),
		StepOrder:   1,
		Name:        "Optional check",
		ActionCode:  domain.ActionVerify,
		TargetType:  domain.TargetSubmission,
		Assignee:    domain.NewAssigneeRule(domain.SubmitterAssignee{}),
		IsMandatory: false,
	}

	stmt := db.Create(&step).Statement
	assert.False(t, step.IsMandatory, "create must not replace an explicit false")
	values := insertValues(t, stmt)
	assert.Equal(t, false, values["is_mandatory"])
	assert.Equal(t, false, values["is_parallel"])
}

func TestCreateDefinition_WritesInactive(t *testing.T) {
	db := dryRunDB(t)
	def := domain.NewWorkflowDefinition("Drafted", "", uuid.New())
	def.IsActive = false

	stmt := db.Omit(clause.Associations).Create(def).Statement
	assert.False(t, def.IsActive)
	assert.Equal(t, false, insertValues(t, stmt)["is_active"])
}

func TestCreateAction_KeepsDelegationFlag(t *testing.T) {
	db := dryRunDB(t)
	var sign domain.WorkflowAction
	for _, a := range domain.DefaultActions() {
		if a.Code == domain.ActionSign {
			sign = a
		}
	}
	require.Equal(t, domain.ActionSign, sign.Code)

	stmt := db.Create(&sign).Statement
	assert.False(t, sign.AllowDelegate)
	assert.Equal(t, false, insertValues(t, stmt)["allow_delegate"])
}

func TestCreateProgress_WritesSnapshotFlags(t *testing.T) {
	db := dryRunDB(t)
	row := domain.NewProgress(uuid.New(), domain.StepSnapshot{
		StepID:      uuid.New(),
		WorkflowID:  uuid.New(),
		StepName:    "Optional check",
		StepOrder:   1,
		ActionCode:  domain.ActionVerify,
		TargetType:  domain.TargetSubmission,
		IsMandatory: false,
	}, time.Now().UTC())

	values := insertValues(t, db.Create(&row).Statement)
	assert.Equal(t, false, values["is_mandatory"])
	assert.Equal(t, 1, values["version"])
}

func TestLockSubmission_SelectsForUpdate(t *testing.T) {
	db := dryRunDB(t)
	submissionID := uuid.New()

	var current []rowVersion
	stmt := lockSubmission(db, submissionID).Find(&current).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, "submission_id = $1")
	assert.True(t, strings.HasSuffix(sql, "FOR UPDATE"), sql)
	assert.Contains(t, sql, `"version"`)
	assert.Equal(t, []any{submissionID}, stmt.Vars)
}

func TestGuardedUpdate_ChecksExpectedVersion(t *testing.T) {
	db := dryRunDB(t)
	row := domain.NewProgress(uuid.New(), domain.StepSnapshot{StepID: uuid.New(), StepOrder: 3}, time.Now().UTC())
	row.Status = domain.StatusCompleted
	row.Version = 42

	stmt := guardedUpdate(db, &row, 41).Statement
	sql := stmt.SQL.String()
	set, where, found := strings.Cut(sql, " WHERE ")
	require.True(t, found, sql)
	assert.Contains(t, where, "version = $")
	assert.Contains(t, where, `"id" = $`)
	assert.Contains(t, set, `"version"=$`)
	assert.Contains(t, set, `"status"=$`)
	assert.NotContains(t, set, `"submission_id"=`)
	assert.NotContains(t, set, `"created_at"=`)
	assert.Contains(t, stmt.Vars, 41)
	assert.Contains(t, stmt.Vars, 42)
	assert.Contains(t, stmt.Vars, row.ID)
}

func TestWithoutDependency(t *testing.T) {
	keep, drop := uuid.New(), uuid.New()

	deps, changed := withoutDependency([]uuid.UUID{keep, drop}, drop)
	assert.True(t, changed)
	assert.Equal(t, []uuid.UUID{keep}, []uuid.UUID(deps))

	deps, changed = withoutDependency([]uuid.UUID{keep}, drop)
	assert.False(t, changed)
	assert.Equal(t, []uuid.UUID{keep}, []uuid.UUID(deps))
}

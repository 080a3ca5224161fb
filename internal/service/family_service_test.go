package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"family-planner/internal/family"
	"family-planner/internal/model"
	"family-planner/internal/repository"
	"family-planner/internal/storage"
)

func newFamilyDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.NewDB(fmt.Sprintf("file:fam_%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newFamilyService(db *gorm.DB) (*FamilyService, *family.Session) {
	session := family.Open(storage.NewMemorySlots(), quiet)
	svc := NewFamilyService(repository.NewFamilyRepository(db), repository.NewMemberRepository(db), session)
	return svc, session
}

func TestFamilyService_CreateAndJoin(t *testing.T) {
	db := newFamilyDB(t)
	ctx := context.Background()

	parent, parentSession := newFamilyService(db)
	_, ok := parent.Current()
	assert.False(t, ok)

	created, err := parent.CreateFamily(ctx, "The Okafors", 100, "Ada")
	require.NoError(t, err)
	assert.True(t, parentSession.HasActiveFamily())
	assert.Equal(t, created.FamilyID, parentSession.CurrentFamilyID())
	assert.Len(t, created.InviteCode, 8)

	child, childSession := newFamilyService(db)
	joined, err := child.JoinFamily(ctx, created.InviteCode, 200, "Chidi", "")
	require.NoError(t, err)
	assert.Equal(t, created.FamilyID, joined.FamilyID)
	assert.Equal(t, "The Okafors", joined.FamilyName)
	assert.NotEqual(t, created.MemberID, childSession.CurrentMemberID())

	members, err := child.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, RoleParent, members[0].Role)
	assert.Equal(t, RoleChild, members[1].Role)
}

func TestFamilyService_JoinErrors(t *testing.T) {
	svc, _ := newFamilyService(newFamilyDB(t))
	ctx := context.Background()

	_, err := svc.JoinFamily(ctx, "", 1, "x", "")
	assert.Error(t, err)

	_, err = svc.JoinFamily(ctx, "NOPE1234", 1, "x", "")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.JoinFamily(ctx, "NOPE1234", 1, "x", "admin")
	assert.Error(t, err)
}

func TestFamilyService_LeaveReturnsToLocalOnly(t *testing.T) {
	svc, session := newFamilyService(newFamilyDB(t))
	ctx := context.Background()

	_, err := svc.CreateFamily(ctx, "Home", 1, "")
	require.NoError(t, err)
	require.NoError(t, svc.Leave())
	assert.False(t, session.HasActiveFamily())

	_, err = svc.Members(ctx)
	assert.ErrorIs(t, err, model.ErrNoFamily)
}

func TestFamilyService_RemoteUnavailable(t *testing.T) {
	svc, session := newFamilyService(nil)

	_, err := svc.CreateFamily(context.Background(), "Home", 1, "Ada")
	assert.ErrorIs(t, err, model.ErrRemoteUnavailable)
	assert.False(t, session.HasActiveFamily())
}

package hierarchy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryDirectory struct {
	forums     map[int64]Forum
	areas      map[int64]Area
	units      map[int64]Unit
	agents     map[int64]Agent
	bankAdmins map[int64]bool
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		forums:     make(map[int64]Forum),
		areas:      make(map[int64]Area),
		units:      make(map[int64]Unit),
		agents:     make(map[int64]Agent),
		bankAdmins: make(map[int64]bool),
	}
}

func (d *memoryDirectory) ForumByAdmin(ctx context.Context, userID int64) (Forum, error) {
	for _, f := range d.forums {
		if f.AdminUserID == userID {
			return f, nil
		}
	}
	return Forum{}, ErrNotFound
}

func (d *memoryDirectory) AreaByAdmin(ctx context.Context, userID int64) (Area, error) {
	for _, a := range d.areas {
		if a.AdminUserID == userID {
			return a, nil
		}
	}
	return Area{}, ErrNotFound
}

func (d *memoryDirectory) UnitByAdmin(ctx context.Context, userID int64) (Unit, error) {
	for _, u := range d.units {
		if u.AdminUserID == userID {
			return u, nil
		}
	}
	return Unit{}, ErrNotFound
}

func (d *memoryDirectory) AgentByUser(ctx context.Context, userID int64) (Agent, error) {
	agent, ok := d.agents[userID]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return agent, nil
}

func (d *memoryDirectory) ForumByID(ctx context.Context, forumID int64) (Forum, error) {
	forum, ok := d.forums[forumID]
	if !ok {
		return Forum{}, ErrNotFound
	}
	return forum, nil
}

func (d *memoryDirectory) AreaByID(ctx context.Context, areaID int64) (Area, error) {
	area, ok := d.areas[areaID]
	if !ok {
		return Area{}, ErrNotFound
	}
	return area, nil
}

func (d *memoryDirectory) UnitByID(ctx context.Context, unitID int64) (Unit, error) {
	unit, ok := d.units[unitID]
	if !ok {
		return Unit{}, ErrNotFound
	}
	return unit, nil
}

func (d *memoryDirectory) IsBankAdmin(ctx context.Context, userID int64) (bool, error) {
	return d.bankAdmins[userID], nil
}

func (d *memoryDirectory) BankAdmins(ctx context.Context) ([]int64, error) {
	var admins []int64
	for userID, ok := range d.bankAdmins {
		if ok {
			admins = append(admins, userID)
		}
	}
	return admins, nil
}

func seedDirectory(d *memoryDirectory) {
	d.forums[1] = Forum{ID: 1, Name: "Forum Nusantara", AdminUserID: 400}
	d.areas[10] = Area{ID: 10, ForumID: 1, Name: "Area Timur", AdminUserID: 300}
	d.units[100] = Unit{ID: 100, AreaID: 10, ForumID: 1, Name: "Unit Mawar", AdminUserID: 200}
	d.agents[101] = Agent{UserID: 101, UnitID: 100, AreaID: 10, ForumID: 1}
	d.bankAdmins[500] = true
}

func TestPlacementResolutionOrder(t *testing.T) {
	dir := newMemoryDirectory()
	seedDirectory(dir)
	resolver := NewResolver(dir)
	ctx := context.Background()

	forum, err := resolver.Placement(ctx, 400)
	require.NoError(t, err)
	require.Equal(t, RoleForumAdmin, forum.Role)
	require.NotNil(t, forum.ForumID)
	require.EqualValues(t, 1, *forum.ForumID)
	require.Nil(t, forum.UnitID)

	area, err := resolver.Placement(ctx, 300)
	require.NoError(t, err)
	require.Equal(t, RoleAreaAdmin, area.Role)
	require.EqualValues(t, 10, *area.AreaID)
	require.EqualValues(t, 1, *area.ForumID)

	unit, err := resolver.Placement(ctx, 200)
	require.NoError(t, err)
	require.Equal(t, RoleUnitAdmin, unit.Role)
	require.EqualValues(t, 100, *unit.UnitID)

	agent, err := resolver.Placement(ctx, 101)
	require.NoError(t, err)
	require.Equal(t, RoleAgent, agent.Role)
	require.EqualValues(t, 100, *agent.UnitID)
	require.EqualValues(t, 10, *agent.AreaID)
	require.EqualValues(t, 1, *agent.ForumID)
}

func TestPlacementSeniorAssignmentWins(t *testing.T) {
	dir := newMemoryDirectory()
	seedDirectory(dir)
	// User 300 also registered as a field agent; the admin assignment must win.
	dir.agents[300] = Agent{UserID: 300, UnitID: 100, AreaID: 10, ForumID: 1}
	resolver := NewResolver(dir)

	placement, err := resolver.Placement(context.Background(), 300)
	require.NoError(t, err)
	require.Equal(t, RoleAreaAdmin, placement.Role)
}

func TestPlacementUnknownUser(t *testing.T) {
	dir := newMemoryDirectory()
	seedDirectory(dir)
	resolver := NewResolver(dir)

	_, err := resolver.Placement(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdminLookups(t *testing.T) {
	dir := newMemoryDirectory()
	seedDirectory(dir)
	resolver := NewResolver(dir)
	ctx := context.Background()

	unitAdmin, err := resolver.UnitAdmin(ctx, 100)
	require.NoError(t, err)
	require.EqualValues(t, 200, unitAdmin)

	areaAdmin, err := resolver.AreaAdmin(ctx, 10)
	require.NoError(t, err)
	require.EqualValues(t, 300, areaAdmin)

	forumAdmin, err := resolver.ForumAdmin(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 400, forumAdmin)

	isBank, err := resolver.IsBankAdmin(ctx, 500)
	require.NoError(t, err)
	require.True(t, isBank)

	isBank, err = resolver.IsBankAdmin(ctx, 101)
	require.NoError(t, err)
	require.False(t, isBank)
}

func TestAdminLookupUnassigned(t *testing.T) {
	dir := newMemoryDirectory()
	seedDirectory(dir)
	dir.units[110] = Unit{ID: 110, AreaID: 10, ForumID: 1, Name: "Unit Melati"}
	resolver := NewResolver(dir)

	_, err := resolver.UnitAdmin(context.Background(), 110)
	require.ErrorIs(t, err, ErrNoAdmin)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("AREA_ADMIN")
	require.NoError(t, err)
	require.Equal(t, RoleAreaAdmin, role)

	_, err = ParseRole("SUPERVISOR")
	require.Error(t, err)

	require.True(t, RoleAgent.Custodial())
	require.False(t, RoleBank.Custodial())
}

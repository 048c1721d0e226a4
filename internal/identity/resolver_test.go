package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskmirror/internal/source"
	"github.com/kazz187/taskmirror/internal/target"
	"github.com/kazz187/taskmirror/internal/task"
)

type fakeMembers struct {
	members []*target.Member
	err     error
	calls   int
}

func (f *fakeMembers) ListMembers(context.Context) ([]*target.Member, error) {
	f.calls++
	return f.members, f.err
}

var roster = []*target.Member{
	{ID: 1, Username: "an.nguyen", Email: "nguyen.an@example.com"},
	{ID: 2, Username: "Bình", Email: "binh.tran@example.com"},
	{ID: 3, Username: "an", Email: "an.other@example.com"},
	{ID: 4, Username: "hoa_le-pham", Email: ""},
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  Nguyễn   Văn  A ", want: "nguyễn văn a"},
		{in: "Bob (Contractor)!", want: "bob contractor"},
		{in: "Alice@Example.COM", want: "alice@example.com"},
		{in: "Jose\u0301", want: "jos\u00e9"},
		{in: "x_y-z.w", want: "x_y-z.w"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestRoster_Match(t *testing.T) {
	r := BuildRoster(roster)
	tests := []struct {
		name   string
		person source.Assignee
		want   task.UserID
		found  bool
	}{
		{name: "email", person: source.Assignee{Email: "BINH.TRAN@example.com"}, want: 2, found: true},
		{name: "email local part", person: source.Assignee{Email: "nguyen.an@other-domain.org"}, want: 1, found: true},
		{name: "email beats name", person: source.Assignee{Name: "Bình", Email: "nguyen.an@example.com"}, want: 1, found: true},
		{name: "full display name", person: source.Assignee{Name: "bình"}, want: 2, found: true},
		{name: "whole username beats fragment", person: source.Assignee{Name: "an"}, want: 3, found: true},
		{name: "space joined segments", person: source.Assignee{Name: "Hoa Le Pham"}, want: 4, found: true},
		{name: "display name token", person: source.Assignee{Name: "Chị Pham"}, want: 4, found: true},
		{name: "no match", person: source.Assignee{Name: "Nobody", Email: "nobody@nowhere.io"}, found: false},
		{name: "empty", person: source.Assignee{}, found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := r.Match(tt.person.Name, tt.person.Email)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, id)
			}
		})
	}
}

func TestBuildRoster_FirstEntryWinsAmongEquals(t *testing.T) {
	r := BuildRoster([]*target.Member{
		{ID: 10, Username: "sam"},
		{ID: 11, Username: "Sam"},
	})
	id, ok := r.Match("sam", "")
	require.True(t, ok)
	assert.Equal(t, task.UserID(10), id)
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(&fakeMembers{members: roster})
	require.NoError(t, r.Load(ctx))

	t.Run("email only and name only together", func(t *testing.T) {
		got := r.Resolve(ctx, []source.Assignee{
			{Email: "nguyen.an@example.com"},
			{Name: "Bình"},
		})
		assert.Equal(t, []task.UserID{1, 2}, got)
	})

	t.Run("duplicates collapse and unmatched are dropped", func(t *testing.T) {
		got := r.Resolve(ctx, []source.Assignee{
			{Name: "Bình"},
			{Name: "ghost"},
			{Email: "binh.tran@example.com"},
		})
		assert.Equal(t, []task.UserID{2}, got)
	})

	t.Run("deterministic", func(t *testing.T) {
		refs := []source.Assignee{{Name: "an"}, {Name: "Hoa Le Pham"}, {Email: "nguyen.an@example.com"}}
		first := r.Resolve(ctx, refs)
		for range 5 {
			assert.Equal(t, first, r.Resolve(ctx, refs))
		}
		assert.Equal(t, []task.UserID{3, 4, 1}, first)
	})

	t.Run("no refs", func(t *testing.T) {
		assert.Empty(t, r.Resolve(ctx, nil))
	})
}

func TestResolver_UnavailableRoster(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(&fakeMembers{err: errors.New("boom")})
	require.Error(t, r.EnsureFresh(ctx))
	assert.Empty(t, r.Resolve(ctx, []source.Assignee{{Name: "an"}}))
}

func TestResolver_EnsureFresh(t *testing.T) {
	ctx := context.Background()
	members := &fakeMembers{members: roster}
	r := NewResolver(members)

	require.NoError(t, r.EnsureFresh(ctx))
	require.NoError(t, r.EnsureFresh(ctx))
	assert.Equal(t, 1, members.calls)
	assert.False(t, r.LoadedAt().IsZero())

	r.Invalidate()
	require.NoError(t, r.EnsureFresh(ctx))
	assert.Equal(t, 2, members.calls)
}

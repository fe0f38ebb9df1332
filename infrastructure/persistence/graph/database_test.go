package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"topicref/domain/core/entities"
	apperrors "topicref/pkg/errors"
)

type dbFixture struct {
	store *fakeStore
	db    *Database
	clock time.Time
	seq   int
}

func newFixture(t *testing.T) *dbFixture {
	t.Helper()
	f := &dbFixture{store: newFakeStore(), clock: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	f.db = NewDatabase(f.store, zap.NewNop(),
		WithClock(func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		}),
		WithIDGenerator(func() string {
			f.seq++
			return fmt.Sprintf("r%02d", f.seq)
		}),
	)
	return f
}

func (f *dbFixture) topics(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, f.db.AddTopic(context.Background(), n))
	}
}

func (f *dbFixture) attach(t *testing.T, topic string, ref entities.Reference) entities.StoredReference {
	t.Helper()
	stored, err := f.db.AddReferenceToTopic(context.Background(), topic, ref)
	require.NoError(t, err)
	return stored
}

func TestDatabase_Health(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Health(context.Background()))

	f.store.failWith = fmt.Errorf("dial tcp: %w", ErrUnavailable)
	err := f.db.Health(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsStore(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
}

func TestDatabase_ListTopics(t *testing.T) {
	f := newFixture(t)
	f.topics(t, "Prayer", "Charity", "Patience", "Fasting")
	ctx := context.Background()

	page1, err := f.db.ListTopics(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Charity", "Fasting", "Patience"}, page1)

	page2, err := f.db.ListTopics(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Prayer"}, page2)

	empty, err := f.db.ListTopics(ctx, 5, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func TestDatabase_InvalidInputNeverReachesStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.db.ListTopics(ctx, 0, 10)
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.db.ListTopics(ctx, 1, -1)
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.db.ListVerseReferences(ctx, "t", 1, 0)
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.db.FindTopicsByVerseOverlap(ctx, entities.VerseRange{Chapter: 2, InitVerse: 1, FinalVerse: 1}, -2, 5)
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.db.FindTopicsByVerseOverlap(ctx, entities.VerseRange{Chapter: 2, InitVerse: 5, FinalVerse: 4}, 1, 5)
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.db.AddReferenceToTopic(ctx, "t", entities.VerseRange{Chapter: 2, InitVerse: 9, FinalVerse: 3})
	assert.True(t, apperrors.IsValidation(err))
	err = f.db.AddTopic(ctx, "  ")
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.db.ListTopics(ctx, math.MaxInt, 2)
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.db.ListVerseReferences(ctx, "t", math.MaxInt, 2)
	assert.True(t, apperrors.IsValidation(err))

	assert.Zero(t, f.store.runCalls())
}

func TestDatabase_AddTopic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.AddTopic(ctx, " Mercy "))
	err := f.db.AddTopic(ctx, "Mercy")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	names, err := f.db.ListTopics(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mercy"}, names)
}

func TestDatabase_AddTopic_ConstraintViolationIsConflict(t *testing.T) {
	f := newFixture(t)
	f.store.failOnRun[stmtCreateTopic] = fmt.Errorf("%w: Topic.name", ErrConstraint)

	err := f.db.AddTopic(context.Background(), "Mercy")
	assert.True(t, apperrors.IsConflict(err))
}

func TestDatabase_DeleteTopic_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.topics(t, "Faith", "Prayer", "Night prayer")
	f.attach(t, "Prayer", entities.VerseRange{Chapter: 2, InitVerse: 43, FinalVerse: 43})
	f.attach(t, "Prayer", entities.Citation{Collection: "muslim", Number: "233"})
	f.attach(t, "Faith", entities.VerseRange{Chapter: 2, InitVerse: 1, FinalVerse: 5})
	require.NoError(t, f.db.AddSubTopic(ctx, "Faith", "Prayer"))
	require.NoError(t, f.db.AddSubTopic(ctx, "Prayer", "Night prayer"))

	require.NoError(t, f.db.DeleteTopic(ctx, "Prayer"))

	names, err := f.db.ListTopics(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"Faith", "Night prayer"}, names)
	assert.Len(t, f.store.state.refs, 1, "only Faith's reference survives")

	subs, err := f.db.ListSubTopics(ctx, "Faith")
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = f.db.ListReferences(ctx, "Prayer")
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(f.db.DeleteTopic(ctx, "Prayer")))
}

func TestDatabase_AddReferenceToTopic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.topics(t, "Patience")

	stored := f.attach(t, "Patience", entities.VerseRange{Chapter: 2, InitVerse: 153, FinalVerse: 157})
	assert.Equal(t, "r01", stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	refs, err := f.db.ListReferences(ctx, "Patience")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, entities.VerseRange{Chapter: 2, InitVerse: 153, FinalVerse: 157}, refs[0].Reference)
}

func TestDatabase_AddReferenceToTopic_MissingTopicLeavesNoOrphan(t *testing.T) {
	f := newFixture(t)

	_, err := f.db.AddReferenceToTopic(context.Background(), "Nowhere",
		entities.BookReference{ISBN: "978-0", Name: "Riyad", Page: 12})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, f.store.state.refs)
}

func TestDatabase_AddReferenceToTopic_LinkFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.topics(t, "Patience")
	f.store.failOnRun[stmtLinkReference] = errors.New("connection reset")

	_, err := f.db.AddReferenceToTopic(context.Background(), "Patience",
		entities.Citation{Collection: "bukhari", Number: "1469"})
	require.Error(t, err)
	assert.True(t, apperrors.IsStore(err))
	assert.Empty(t, f.store.state.refs)
	assert.Empty(t, f.store.state.refEdges["Patience"])
}

func TestDatabase_ListReferences_CreationOrder(t *testing.T) {
	f := newFixture(t)
	f.topics(t, "Charity")
	first := f.attach(t, "Charity", entities.BookReference{ISBN: "1", Name: "Book", Page: 3})
	second := f.attach(t, "Charity", entities.VerseRange{Chapter: 2, InitVerse: 261, FinalVerse: 262})
	third := f.attach(t, "Charity", entities.Citation{Collection: "tirmidhi", Number: "614"})

	refs, err := f.db.ListReferences(context.Background(), "Charity")
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{refs[0].ID, refs[1].ID, refs[2].ID})
	assert.True(t, entities.IsBook(refs[0].Reference))
}

func TestDatabase_ListReferences_DecodesUntaggedNodes(t *testing.T) {
	f := newFixture(t)
	f.topics(t, "Legacy")
	f.store.state.refs["old"] = fakeNode{
		labels: []string{"Reference", "Citation"},
		props:  map[string]any{"id": "old", "created_at": int64(1), "collection": "abu dawud", "number": "5"},
	}
	f.store.state.refEdges["Legacy"] = []string{"old"}

	refs, err := f.db.ListReferences(context.Background(), "Legacy")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, entities.Citation{Collection: "abu dawud", Number: "5"}, refs[0].Reference)

	f.store.state.refs["odd"] = fakeNode{
		labels: []string{"Reference"},
		props:  map[string]any{"id": "odd", "created_at": int64(2), "title": "?"},
	}
	f.store.state.refEdges["Legacy"] = append(f.store.state.refEdges["Legacy"], "odd")

	_, err = f.db.ListReferences(context.Background(), "Legacy")
	require.Error(t, err)
	assert.True(t, apperrors.IsStore(err))
}

func TestDatabase_ListVerseReferences(t *testing.T) {
	f := newFixture(t)
	f.topics(t, "Fasting")
	f.attach(t, "Fasting", entities.VerseRange{Chapter: 2, InitVerse: 185, FinalVerse: 185})
	f.attach(t, "Fasting", entities.Citation{Collection: "bukhari", Number: "1904"})
	f.attach(t, "Fasting", entities.VerseRange{Chapter: 2, InitVerse: 183, FinalVerse: 184})
	f.attach(t, "Fasting", entities.VerseRange{Chapter: 97, InitVerse: 1, FinalVerse: 5})

	page1, err := f.db.ListVerseReferences(context.Background(), "Fasting", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, entities.VerseRange{Chapter: 2, InitVerse: 183, FinalVerse: 184}, page1[0].Reference)
	assert.Equal(t, entities.VerseRange{Chapter: 2, InitVerse: 185, FinalVerse: 185}, page1[1].Reference)

	page2, err := f.db.ListVerseReferences(context.Background(), "Fasting", 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, entities.VerseRange{Chapter: 97, InitVerse: 1, FinalVerse: 5}, page2[0].Reference)

	_, err = f.db.ListVerseReferences(context.Background(), "Missing", 1, 2)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDatabase_FindTopicsByVerseOverlap(t *testing.T) {
	ctx := context.Background()

	t.Run("containment not intersection", func(t *testing.T) {
		f := newFixture(t)
		f.topics(t, "Creation")
		f.attach(t, "Creation", entities.VerseRange{Chapter: 2, InitVerse: 1, FinalVerse: 10})

		names, err := f.db.FindTopicsByVerseOverlap(ctx, entities.VerseRange{Chapter: 2, InitVerse: 3, FinalVerse: 4}, 1, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"Creation"}, names)

		names, err = f.db.FindTopicsByVerseOverlap(ctx, entities.VerseRange{Chapter: 2, InitVerse: 0, FinalVerse: 4}, 1, 50)
		require.NoError(t, err)
		assert.Empty(t, names)

		names, err = f.db.FindTopicsByVerseOverlap(ctx, entities.VerseRange{Chapter: 3, InitVerse: 3, FinalVerse: 4}, 1, 50)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("drops only consecutive duplicates", func(t *testing.T) {
		f := newFixture(t)
		f.topics(t, "A", "B")
		f.attach(t, "A", entities.VerseRange{Chapter: 2, InitVerse: 1, FinalVerse: 10}) // r01
		f.attach(t, "B", entities.VerseRange{Chapter: 2, InitVerse: 1, FinalVerse: 5})  // r02
		f.attach(t, "A", entities.VerseRange{Chapter: 2, InitVerse: 3, FinalVerse: 4})  // r03

		names, err := f.db.FindTopicsByVerseOverlap(ctx, entities.VerseRange{Chapter: 2, InitVerse: 3, FinalVerse: 4}, 1, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "A"}, names)
	})

	t.Run("adjacent repeats collapse", func(t *testing.T) {
		f := newFixture(t)
		f.topics(t, "A", "B")
		f.attach(t, "A", entities.VerseRange{Chapter: 2, InitVerse: 1, FinalVerse: 10}) // r01
		f.attach(t, "A", entities.VerseRange{Chapter: 2, InitVerse: 2, FinalVerse: 9})  // r02
		f.attach(t, "B", entities.VerseRange{Chapter: 2, InitVerse: 3, FinalVerse: 8})  // r03

		names, err := f.db.FindTopicsByVerseOverlap(ctx, entities.VerseRange{Chapter: 2, InitVerse: 4, FinalVerse: 5}, 1, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, names)
	})

	t.Run("paginates before de-duplicating", func(t *testing.T) {
		f := newFixture(t)
		f.topics(t, "A", "B")
		f.attach(t, "A", entities.VerseRange{Chapter: 2, InitVerse: 1, FinalVerse: 10})
		f.attach(t, "A", entities.VerseRange{Chapter: 2, InitVerse: 2, FinalVerse: 9})
		f.attach(t, "B", entities.VerseRange{Chapter: 2, InitVerse: 3, FinalVerse: 8})

		q := entities.VerseRange{Chapter: 2, InitVerse: 4, FinalVerse: 5}
		page1, err := f.db.FindTopicsByVerseOverlap(ctx, q, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, page1)

		page2, err := f.db.FindTopicsByVerseOverlap(ctx, q, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, page2)
	})

	t.Run("page beyond the offset range is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.topics(t, "T")
		f.attach(t, "T", entities.VerseRange{Chapter: 2, InitVerse: 1, FinalVerse: 10})

		q := entities.VerseRange{Chapter: 2, InitVerse: 3, FinalVerse: 5}
		require.NotPanics(t, func() {
			_, err := f.db.FindTopicsByVerseOverlap(ctx, q, math.MaxInt64, 2)
			assert.True(t, apperrors.IsValidation(err))
		})

		names, err := f.db.FindTopicsByVerseOverlap(ctx, q, math.MaxInt/2, 2)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("owner lookup failure surfaces", func(t *testing.T) {
		f := newFixture(t)
		f.topics(t, "A")
		f.attach(t, "A", entities.VerseRange{Chapter: 2, InitVerse: 1, FinalVerse: 10})
		f.store.failOnRun[stmtOwningTopics] = errors.New("broken pipe")

		_, err := f.db.FindTopicsByVerseOverlap(ctx, entities.VerseRange{Chapter: 2, InitVerse: 2, FinalVerse: 2}, 1, 10)
		require.Error(t, err)
		assert.True(t, apperrors.IsStore(err))
	})
}

func TestDatabase_SubTopics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.topics(t, "Worship", "Prayer", "Fasting")

	require.NoError(t, f.db.AddSubTopic(ctx, "Worship", "Prayer"))
	require.NoError(t, f.db.AddSubTopic(ctx, "Worship", "Fasting"))
	require.NoError(t, f.db.AddSubTopic(ctx, "Worship", "Prayer"))

	subs, err := f.db.ListSubTopics(ctx, "Worship")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fasting", "Prayer"}, subs)

	assert.True(t, apperrors.IsValidation(f.db.AddSubTopic(ctx, "Worship", "Worship")))
	assert.True(t, apperrors.IsNotFound(f.db.AddSubTopic(ctx, "Worship", "Missing")))
	_, err = f.db.ListSubTopics(ctx, "Missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDatabase_Sessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, f.db.CreateSession(ctx, "abc", entities.SessionRecord{Verifier: "v", CreatedAt: created}))
	assert.True(t, apperrors.IsConflict(f.db.CreateSession(ctx, "abc", entities.SessionRecord{CreatedAt: created})))

	rec, err := f.db.GetSession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", rec.Key)
	assert.Equal(t, "v", rec.Verifier)
	assert.Equal(t, created, rec.CreatedAt)
	assert.False(t, rec.HasToken())

	first := entities.Token{
		AccessToken:  "at-1",
		TokenType:    "Bearer",
		RefreshToken: "rt-1",
		IssuedAt:     created.Add(time.Minute),
		ExpiresIn:    time.Hour,
		Claims:       &entities.Claims{Name: "Reader", Email: "reader@example.com", ExpiresAt: created.Add(2 * time.Hour)},
	}
	rec, err = f.db.UpdateSession(ctx, "abc", first)
	require.NoError(t, err)
	require.True(t, rec.HasToken())
	assert.Equal(t, first, *rec.Token)

	second := entities.Token{IDToken: "id-2", IssuedAt: created.Add(2 * time.Minute)}
	rec, err = f.db.UpdateSession(ctx, "abc", second)
	require.NoError(t, err)
	assert.Equal(t, second, *rec.Token, "replacing a token leaves none of the previous one")

	got, err := f.db.GetSession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = f.db.UpdateSession(ctx, "missing", first)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.db.GetSession(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, f.db.DeleteSession(ctx, "abc"))
	assert.True(t, apperrors.IsNotFound(f.db.DeleteSession(ctx, "abc")))
}

func TestDatabase_PurgeSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.CreateSession(ctx, "old", entities.SessionRecord{CreatedAt: base}))
	require.NoError(t, f.db.CreateSession(ctx, "new", entities.SessionRecord{CreatedAt: base.Add(time.Hour)}))

	removed, err := f.db.PurgeSessions(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.db.GetSession(ctx, "old")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = f.db.GetSession(ctx, "new")
	assert.NoError(t, err)
}

func TestDatabase_MigrateAndClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Migrate(context.Background()))
	assert.Equal(t, len(schemaStatements), f.store.runCalls())

	require.NoError(t, f.db.Close(context.Background()))
	assert.True(t, f.store.closed)
}

func TestPaginate(t *testing.T) {
	items := []string{"a", "b", "c"}
	assert.Equal(t, []string{"b", "c"}, paginate(items, 1, 5))
	assert.Equal(t, []string{"a"}, paginate(items, 0, 1))
	assert.Equal(t, []string{}, paginate(items, 3, 1))
	assert.Equal(t, []string{}, paginate(items, -2, 2))
	assert.Equal(t, []string{"c"}, paginate(items, 2, math.MaxInt))
}

func TestDedupConsecutive(t *testing.T) {
	assert.Equal(t, []string{}, dedupConsecutive(nil))
	assert.Equal(t, []string{"a", "b", "a"}, dedupConsecutive([]string{"a", "a", "b", "b", "a"}))
}

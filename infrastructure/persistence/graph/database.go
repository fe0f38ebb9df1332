package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"topicref/domain/core/entities"
	"topicref/domain/core/validators"
	apperrors "topicref/pkg/errors"
	"topicref/pkg/utils"
)

const defaultFanOut = 8

// Database implements ports.Database on top of a GraphStore.
type Database struct {
	store  GraphStore
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
	fanOut int
}

type Option func(*Database)

// WithClock replaces time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Database) { d.now = now }
}

// WithIDGenerator replaces the UUID generator used for reference ids.
func WithIDGenerator(newID func() string) Option {
	return func(d *Database) { d.newID = newID }
}

// WithFanOut bounds the concurrent owner lookups of a verse search.
func WithFanOut(n int) Option {
	return func(d *Database) {
		if n > 0 {
			d.fanOut = n
		}
	}
}

func NewDatabase(store GraphStore, logger *zap.Logger, opts ...Option) *Database {
	d := &Database{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		fanOut: defaultFanOut,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close releases the underlying store.
func (d *Database) Close(ctx context.Context) error {
	return d.store.Close(ctx)
}

// storeError maps a failed transaction onto the error taxonomy. Errors that
// already belong to it pass through untouched.
func (d *Database) storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}
	switch {
	case errors.Is(err, ErrConstraint):
		return apperrors.NewConflictError(fmt.Sprintf("%s: uniqueness constraint violated", op)).WithCause(err)
	case errors.Is(err, ErrUnavailable):
		d.logger.Error("Graph store unavailable", zap.String("operation", op), zap.Error(err))
		return apperrors.NewUnavailableError("graph store").WithCause(err)
	default:
		d.logger.Error("Graph store operation failed", zap.String("operation", op), zap.Error(err))
		return apperrors.NewStoreError(op, err)
	}
}

func (d *Database) Health(ctx context.Context) error {
	err := d.store.Read(ctx, func(ctx context.Context, tx Runner) error {
		_, err := tx.Run(ctx, stmtPing, nil)
		return err
	})
	return d.storeError("health", err)
}

func (d *Database) ListTopics(ctx context.Context, page, size int) ([]string, error) {
	skip, err := validators.PageOffset(page, size)
	if err != nil {
		return nil, err
	}

	var names []string
	err = d.store.Read(ctx, func(ctx context.Context, tx Runner) error {
		rows, err := tx.Run(ctx, stmtListTopics, map[string]any{"skip": int64(skip), "limit": int64(size)})
		if err != nil {
			return err
		}
		names, err = stringColumn(rows, "name")
		return err
	})
	if err != nil {
		return nil, d.storeError("list_topics", err)
	}
	return names, nil
}

func (d *Database) AddTopic(ctx context.Context, name string) error {
	name, err := validators.NormalizeTopicName(name)
	if err != nil {
		return err
	}
	err = d.store.Write(ctx, func(ctx context.Context, tx Runner) error {
		exists, err := topicExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.NewConflictError(fmt.Sprintf("topic %q already exists", name))
		}
		_, err = tx.Run(ctx, stmtCreateTopic, map[string]any{
			"name":       name,
			"created_at": utils.ToMillis(d.now()),
		})
		return err
	})
	return d.storeError("add_topic", err)
}

func (d *Database) DeleteTopic(ctx context.Context, name string) error {
	name, err := validators.NormalizeTopicName(name)
	if err != nil {
		return err
	}
	err = d.store.Write(ctx, func(ctx context.Context, tx Runner) error {
		if err := requireTopic(ctx, tx, name); err != nil {
			return err
		}
		_, err := tx.Run(ctx, stmtDeleteTopic, map[string]any{"name": name})
		return err
	})
	return d.storeError("delete_topic", err)
}

func (d *Database) AddSubTopic(ctx context.Context, parent, child string) error {
	parent, err := validators.NormalizeTopicName(parent)
	if err != nil {
		return err
	}
	child, err = validators.NormalizeTopicName(child)
	if err != nil {
		return err
	}
	if parent == child {
		return apperrors.NewValidationError("a topic cannot be its own sub-topic")
	}
	err = d.store.Write(ctx, func(ctx context.Context, tx Runner) error {
		if err := requireTopic(ctx, tx, parent); err != nil {
			return err
		}
		if err := requireTopic(ctx, tx, child); err != nil {
			return err
		}
		_, err := tx.Run(ctx, stmtLinkSubTopic, map[string]any{"parent": parent, "child": child})
		return err
	})
	return d.storeError("add_subtopic", err)
}

func (d *Database) ListSubTopics(ctx context.Context, parent string) ([]string, error) {
	parent, err := validators.NormalizeTopicName(parent)
	if err != nil {
		return nil, err
	}
	var names []string
	err = d.store.Read(ctx, func(ctx context.Context, tx Runner) error {
		if err := requireTopic(ctx, tx, parent); err != nil {
			return err
		}
		rows, err := tx.Run(ctx, stmtListSubTopics, map[string]any{"name": parent})
		if err != nil {
			return err
		}
		names, err = stringColumn(rows, "name")
		return err
	})
	if err != nil {
		return nil, d.storeError("list_subtopics", err)
	}
	return names, nil
}

// AddReferenceToTopic runs create, locate and link in one transaction. A
// missing topic aborts it, so no orphan reference node survives.
func (d *Database) AddReferenceToTopic(ctx context.Context, topic string, ref entities.Reference) (entities.StoredReference, error) {
	topic, err := validators.NormalizeTopicName(topic)
	if err != nil {
		return entities.StoredReference{}, err
	}
	if err := validators.ValidateReference(ref); err != nil {
		return entities.StoredReference{}, err
	}
	create, ok := createReferenceStatements[ref.Kind()]
	if !ok {
		return entities.StoredReference{}, apperrors.NewValidationError(fmt.Sprintf("unsupported reference kind %q", ref.Kind()))
	}

	stored := entities.StoredReference{ID: d.newID(), CreatedAt: d.now(), Reference: ref}
	err = d.store.Write(ctx, func(ctx context.Context, tx Runner) error {
		if _, err := tx.Run(ctx, create, map[string]any{"props": encodeReference(stored)}); err != nil {
			return err
		}
		if err := requireTopic(ctx, tx, topic); err != nil {
			return err
		}
		rows, err := tx.Run(ctx, stmtLinkReference, map[string]any{"topic": topic, "id": stored.ID})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return apperrors.NewInternalError(fmt.Sprintf("reference %s was not linked to topic %q", stored.ID, topic))
		}
		return nil
	})
	if err != nil {
		return entities.StoredReference{}, d.storeError("add_reference_to_topic", err)
	}
	return stored, nil
}

func (d *Database) ListReferences(ctx context.Context, topic string) ([]entities.StoredReference, error) {
	topic, err := validators.NormalizeTopicName(topic)
	if err != nil {
		return nil, err
	}
	var refs []entities.StoredReference
	err = d.store.Read(ctx, func(ctx context.Context, tx Runner) error {
		if err := requireTopic(ctx, tx, topic); err != nil {
			return err
		}
		rows, err := tx.Run(ctx, stmtListReferences, map[string]any{"name": topic})
		if err != nil {
			return err
		}
		refs, err = decodeReferences(rows)
		return err
	})
	if err != nil {
		return nil, d.storeError("list_references", err)
	}
	return refs, nil
}

func (d *Database) ListVerseReferences(ctx context.Context, topic string, page, size int) ([]entities.StoredReference, error) {
	topic, err := validators.NormalizeTopicName(topic)
	if err != nil {
		return nil, err
	}
	skip, err := validators.PageOffset(page, size)
	if err != nil {
		return nil, err
	}
	var refs []entities.StoredReference
	err = d.store.Read(ctx, func(ctx context.Context, tx Runner) error {
		if err := requireTopic(ctx, tx, topic); err != nil {
			return err
		}
		rows, err := tx.Run(ctx, stmtListVerseReferences, map[string]any{
			"name":  topic,
			"skip":  int64(skip),
			"limit": int64(size),
		})
		if err != nil {
			return err
		}
		refs, err = decodeReferences(rows)
		return err
	})
	if err != nil {
		return nil, d.storeError("list_verse_references", err)
	}
	return refs, nil
}

// FindTopicsByVerseOverlap finds every stored verse range containing v, looks
// up the owning topics of each match concurrently, flattens the owner lists in
// match order, paginates, and then drops repeats that sit next to each other.
// A topic owning two non-adjacent matches may therefore appear twice.
func (d *Database) FindTopicsByVerseOverlap(ctx context.Context, v entities.VerseRange, page, size int) ([]string, error) {
	if err := validators.ValidateVerseRange(v); err != nil {
		return nil, err
	}
	skip, err := validators.PageOffset(page, size)
	if err != nil {
		return nil, err
	}

	var ids []string
	err = d.store.Read(ctx, func(ctx context.Context, tx Runner) error {
		rows, err := tx.Run(ctx, stmtMatchContainingVerses, map[string]any{
			"chapter":     int64(v.Chapter),
			"init_verse":  int64(v.InitVerse),
			"final_verse": int64(v.FinalVerse),
		})
		if err != nil {
			return err
		}
		ids, err = stringColumn(rows, "id")
		return err
	})
	if err != nil {
		return nil, d.storeError("find_topics_by_verse_overlap", err)
	}

	owners := make([][]string, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.fanOut)
	for i, id := range ids {
		g.Go(func() error {
			return d.store.Read(gctx, func(ctx context.Context, tx Runner) error {
				rows, err := tx.Run(ctx, stmtOwningTopics, map[string]any{"id": id})
				if err != nil {
					return err
				}
				owners[i], err = stringColumn(rows, "name")
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, d.storeError("find_topics_by_verse_overlap", err)
	}

	var names []string
	for _, o := range owners {
		names = append(names, o...)
	}
	return dedupConsecutive(paginate(names, skip, size)), nil
}

func (d *Database) CreateSession(ctx context.Context, key string, rec entities.SessionRecord) error {
	if key == "" {
		return apperrors.NewValidationError("session key is required")
	}
	err := d.store.Write(ctx, func(ctx context.Context, tx Runner) error {
		rows, err := tx.Run(ctx, stmtSessionExists, map[string]any{"key": key})
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return apperrors.NewConflictError("session already exists")
		}
		_, err = tx.Run(ctx, stmtCreateSession, map[string]any{"props": encodeSession(key, rec)})
		return err
	})
	return d.storeError("create_session", err)
}

func (d *Database) GetSession(ctx context.Context, key string) (*entities.SessionRecord, error) {
	var rec *entities.SessionRecord
	err := d.store.Read(ctx, func(ctx context.Context, tx Runner) error {
		rows, err := tx.Run(ctx, stmtGetSession, map[string]any{"key": key})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return apperrors.NewNotFoundError("session")
		}
		rec, err = decodeSession(rows[0]["session"])
		return err
	})
	if err != nil {
		return nil, d.storeError("get_session", err)
	}
	return rec, nil
}

func (d *Database) UpdateSession(ctx context.Context, key string, token entities.Token) (*entities.SessionRecord, error) {
	var rec *entities.SessionRecord
	err := d.store.Write(ctx, func(ctx context.Context, tx Runner) error {
		rows, err := tx.Run(ctx, stmtUpdateSession, map[string]any{"key": key, "props": encodeToken(token)})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return apperrors.NewNotFoundError("session")
		}
		rec, err = decodeSession(rows[0]["session"])
		return err
	})
	if err != nil {
		return nil, d.storeError("update_session", err)
	}
	return rec, nil
}

func (d *Database) DeleteSession(ctx context.Context, key string) error {
	err := d.store.Write(ctx, func(ctx context.Context, tx Runner) error {
		rows, err := tx.Run(ctx, stmtDeleteSession, map[string]any{"key": key})
		if err != nil {
			return err
		}
		if removed, _ := firstCount(rows, "removed"); removed == 0 {
			return apperrors.NewNotFoundError("session")
		}
		return nil
	})
	return d.storeError("delete_session", err)
}

func (d *Database) PurgeSessions(ctx context.Context, createdBefore time.Time) (int, error) {
	var removed int64
	err := d.store.Write(ctx, func(ctx context.Context, tx Runner) error {
		rows, err := tx.Run(ctx, stmtPurgeSessions, map[string]any{"cutoff": utils.ToMillis(createdBefore)})
		if err != nil {
			return err
		}
		removed, _ = firstCount(rows, "removed")
		return nil
	})
	if err != nil {
		return 0, d.storeError("purge_sessions", err)
	}
	return int(removed), nil
}

// Migrate installs the uniqueness constraints the layer relies on.
func (d *Database) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		err := d.store.Write(ctx, func(ctx context.Context, tx Runner) error {
			_, err := tx.Run(ctx, stmt, nil)
			return err
		})
		if err != nil {
			return d.storeError("migrate", err)
		}
	}
	d.logger.Info("Graph schema is up to date", zap.Int("statements", len(schemaStatements)))
	return nil
}

func topicExists(ctx context.Context, tx Runner, name string) (bool, error) {
	rows, err := tx.Run(ctx, stmtTopicExists, map[string]any{"name": name})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func requireTopic(ctx context.Context, tx Runner, name string) error {
	exists, err := topicExists(ctx, tx, name)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NewNotFoundError(fmt.Sprintf("topic %q", name))
	}
	return nil
}

func decodeReferences(rows []Record) ([]entities.StoredReference, error) {
	refs := make([]entities.StoredReference, 0, len(rows))
	for _, row := range rows {
		ref, err := decodeReference(row["ref"])
		if err != nil {
			return nil, apperrors.NewStoreError("decode_reference", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func firstCount(rows []Record, column string) (int64, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	return asInt64(rows[0][column])
}

func paginate(items []string, skip, limit int) []string {
	if skip < 0 || limit < 1 || skip >= len(items) {
		return []string{}
	}
	end := len(items)
	if limit < end-skip {
		end = skip + limit
	}
	return items[skip:end]
}

func dedupConsecutive(items []string) []string {
	out := make([]string, 0, len(items))
	for i, s := range items {
		if i > 0 && s == items[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

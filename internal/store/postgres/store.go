package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"qms/smartqueue-service/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the single JSONB table every collection lives in.
const Schema = `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops);
`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return store.Failure(err, "migrate documents")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, bool, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `
		SELECT data FROM documents WHERE collection = $1 AND id = $2
	`, collection, id)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, store.Failure(err, "get %s/%s", collection, id)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, false, store.Failure(err, "decode %s/%s", collection, id)
	}
	return doc, true, nil
}

func (s *Store) Query(ctx context.Context, collection string, query store.Query) ([]store.Document, error) {
	sql, args, err := buildQuery(collection, query)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", collection)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, store.Failure(err, "query %s", collection)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, store.Failure(err, "scan %s", collection)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, store.Failure(err, "decode %s", collection)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Failure(err, "query %s", collection)
	}
	return docs, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc store.Document, merge bool) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(store.ErrInvalidInput, "encode %s/%s: %v", collection, id, err)
	}
	conflict := "data = EXCLUDED.data"
	if merge {
		conflict = "data = documents.data || EXCLUDED.data"
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id)
		DO UPDATE SET `+conflict+`, updated_at = now()
	`, collection, id, string(payload))
	if err != nil {
		return store.Failure(err, "set %s/%s", collection, id)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, partial store.Document) error {
	payload, err := json.Marshal(partial)
	if err != nil {
		return errors.Wrapf(store.ErrInvalidInput, "encode %s/%s: %v", collection, id, err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2
	`, collection, id, string(payload))
	if err != nil {
		return store.Failure(err, "update %s/%s", collection, id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(store.ErrNotFound, "update %s/%s", collection, id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id); err != nil {
		return store.Failure(err, "delete %s/%s", collection, id)
	}
	return nil
}

const incrementSQL = `
	INSERT INTO documents (collection, id, data)
	VALUES ($1, $2, jsonb_build_object($3::text, $4::bigint))
	ON CONFLICT (collection, id)
	DO UPDATE SET
		data = documents.data || jsonb_build_object($3::text, COALESCE((documents.data->>$3::text)::bigint, 0) + $4::bigint),
		updated_at = now()
	RETURNING (data->>$3::text)::bigint
`

func (s *Store) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	var next int64
	if err := s.pool.QueryRow(ctx, incrementSQL, collection, id, field, delta).Scan(&next); err != nil {
		return 0, store.Failure(err, "increment %s/%s.%s", collection, id, field)
	}
	return next, nil
}

// InsertSequenced advances the counter row and writes the numbered
// documents in one transaction. The counter row lock serializes concurrent
// batches for the same sequence.
func (s *Store) InsertSequenced(ctx context.Context, seq store.Sequence, collection, field string, docs []store.SequencedDocument) (int64, error) {
	if len(docs) == 0 {
		return 0, errors.Wrap(store.ErrInvalidInput, "no documents to insert")
	}
	payloads := make([]string, len(docs))
	for i, d := range docs {
		payload, err := json.Marshal(d.Doc)
		if err != nil {
			return 0, errors.Wrapf(store.ErrInvalidInput, "encode %s/%s: %v", collection, d.ID, err)
		}
		payloads[i] = string(payload)
	}

	var first int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var last int64
		if err := tx.QueryRow(ctx, incrementSQL, seq.Collection, seq.ID, seq.Field, int64(len(docs))).Scan(&last); err != nil {
			return errors.Wrapf(err, "advance %s/%s.%s", seq.Collection, seq.ID, seq.Field)
		}
		first = last - int64(len(docs)) + 1
		for i, d := range docs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO documents (collection, id, data)
				VALUES ($1, $2, $3::jsonb || jsonb_build_object($4::text, $5::bigint))
				ON CONFLICT (collection, id)
				DO UPDATE SET data = EXCLUDED.data, updated_at = now()
			`, collection, d.ID, payloads[i], field, first+int64(i)); err != nil {
				return errors.Wrapf(err, "insert %s/%s", collection, d.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, store.Failure(err, "insert %s numbered by %s/%s", collection, seq.Collection, seq.ID)
	}
	return first, nil
}

// buildQuery renders filters as JSONB predicates. Field names and values
// are always bound as parameters.
func buildQuery(collection string, query store.Query) (string, []interface{}, error) {
	var b strings.Builder
	args := []interface{}{collection}
	b.WriteString("SELECT data FROM documents WHERE collection = $1")

	for _, filter := range query.Filters {
		clause, clauseArgs, err := filterClause(filter, len(args)+1)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" AND ")
		b.WriteString(clause)
		args = append(args, clauseArgs...)
	}

	if query.OrderBy != nil {
		args = append(args, query.OrderBy.Field)
		fmt.Fprintf(&b, " ORDER BY data->$%d::text", len(args))
		if query.OrderBy.Descending {
			b.WriteString(" DESC NULLS LAST")
		} else {
			b.WriteString(" ASC NULLS LAST")
		}
	}
	if query.Limit > 0 {
		args = append(args, query.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args, nil
}

func filterClause(filter store.Filter, pos int) (string, []interface{}, error) {
	field := fmt.Sprintf("$%d::text", pos)
	value := fmt.Sprintf("$%d", pos+1)

	if filter.Op == store.OpIn {
		values, ok := stringList(filter.Value)
		if !ok {
			return "FALSE", nil, nil
		}
		return fmt.Sprintf("data->>%s = ANY(%s::text[])", field, value), []interface{}{filter.Field, values}, nil
	}

	sqlOp, err := sqlOperator(filter.Op)
	if err != nil {
		return "", nil, err
	}

	switch v := filter.Value.(type) {
	case nil:
		isNull := fmt.Sprintf("(data->%s IS NULL OR data->%s = 'null'::jsonb)", field, field)
		switch filter.Op {
		case store.OpEq:
			return isNull, []interface{}{filter.Field}, nil
		case store.OpNe:
			return "NOT " + isNull, []interface{}{filter.Field}, nil
		}
		return "FALSE", []interface{}{filter.Field}, nil
	case string:
		typed := fmt.Sprintf("CASE WHEN jsonb_typeof(data->%s) = 'string' THEN data->>%s END", field, field)
		return comparison(typed, sqlOp, value+"::text", filter.Op), []interface{}{filter.Field, v}, nil
	case bool:
		typed := fmt.Sprintf("CASE WHEN jsonb_typeof(data->%s) = 'boolean' THEN (data->>%s)::boolean END", field, field)
		return comparison(typed, sqlOp, value+"::boolean", filter.Op), []interface{}{filter.Field, v}, nil
	}

	if n, ok := numeric(filter.Value); ok {
		typed := fmt.Sprintf("CASE WHEN jsonb_typeof(data->%s) = 'number' THEN (data->>%s)::numeric END", field, field)
		return comparison(typed, sqlOp, value+"::numeric", filter.Op), []interface{}{filter.Field, n}, nil
	}
	return "", nil, errors.Wrapf(store.ErrInvalidInput, "unsupported filter value %T", filter.Value)
}

func comparison(typed, sqlOp, value string, op store.Op) string {
	if op == store.OpNe {
		return fmt.Sprintf("%s IS DISTINCT FROM %s", typed, value)
	}
	return fmt.Sprintf("%s %s %s", typed, sqlOp, value)
}

func sqlOperator(op store.Op) (string, error) {
	switch op {
	case store.OpEq:
		return "=", nil
	case store.OpNe:
		return "<>", nil
	case store.OpLt:
		return "<", nil
	case store.OpLte:
		return "<=", nil
	case store.OpGt:
		return ">", nil
	case store.OpGte:
		return ">=", nil
	}
	return "", errors.Wrapf(store.ErrUnsupportedOp, "op %q", op)
}

func numeric(value interface{}) (float64, bool) {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

func stringList(value interface{}) ([]string, bool) {
	list := reflect.ValueOf(value)
	if list.Kind() != reflect.Slice && list.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		out = append(out, fmt.Sprint(list.Index(i).Interface()))
	}
	return out, true
}

func decodeDocument(raw []byte) (store.Document, error) {
	doc := store.Document{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

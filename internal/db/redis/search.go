package redis

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecrag/internal/db"
)

const scoreField = "__vector_score"

// SearchKNN runs a KNN query via FT.SEARCH. Entry scores are the engine's
// raw distances, ordered closest first. valkey-search rejects the AS alias and
// SORTBY, so on Valkey the implicit __<field>_score is read and sorted here.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, errors.New("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, errors.New("vector is required")
	}
	if q.K <= 0 {
		return nil, errors.New("k must be positive")
	}

	field := q.VectorField
	if field == "" {
		field = "vector"
	}

	if s.valkey {
		return s.searchKNNValkey(ctx, q, field)
	}

	args := []string{q.IndexName, fmt.Sprintf("*=>[KNN %d @%s $BLOB AS %s]", q.K, field, scoreField)}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, scoreField)
	}
	args = append(args,
		"SORTBY", scoreField, "ASC",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)
	return s.runKNN(ctx, args, scoreField)
}

func (s *Store) searchKNNValkey(ctx context.Context, q *db.KNNQuery, field string) (*db.SearchResult, error) {
	score := "__" + field + "_score"
	args := []string{q.IndexName, fmt.Sprintf("*=>[KNN %d @%s $BLOB]", q.K, field)}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)+1))
		args = append(args, q.ReturnFields...)
		args = append(args, score)
	}
	args = append(args, "PARAMS", "2", "BLOB", vectorToBytes(q.Vector), "DIALECT", "2")

	res, err := s.runKNN(ctx, args, score)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(res.Entries, func(a, b db.SearchEntry) int {
		return cmp.Compare(a.Score, b.Score)
	})
	return res, nil
}

func (s *Store) runKNN(ctx context.Context, args []string, score string) (*db.SearchResult, error) {
	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") || isRedisErr(err, "not found") {
			return nil, db.ErrIndexNotFound
		}
		return nil, db.Wrap(db.OpSearch, err)
	}
	return parseKNNResult(raw, score)
}

// parseKNNResult reads the RESP2 layout [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage, score string) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, min(int(total), (len(raw)-1)/2))
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{Key: key, Fields: parseFieldPairs(fields)}
		if v, ok := entry.Fields[score]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				entry.Score = f
			}
			delete(entry.Fields, score)
		}
		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// vectorToBytes encodes a FLOAT32 vector blob in little-endian order.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// Package tracker talks to the Huckleberry backend over the Firestore REST
// API. It runs structured queries against the per-child record collections
// and converts the returned documents into typed records.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/trymwestin/huckleberry/internal/core/auth"
)

// Collection names as the mobile app writes them.
const (
	collectionSleep    = "sleepIntervals"
	collectionFeed     = "feedIntervals"
	collectionDiaper   = "diaperIntervals"
	collectionGrowth   = "healthEntries"
	collectionChildren = "children"
)

const startField = "start"

// TokenSource supplies a live session for request authorization.
type TokenSource interface {
	Token(ctx context.Context) (auth.Session, error)
}

var _ TokenSource = (*auth.TokenManager)(nil)

// Client queries the vendor's Firestore project. All fetches require a
// session from the TokenSource; the account UID in the session scopes the
// document paths.
type Client struct {
	base      string
	projectID string
	tokens    TokenSource
	client    *http.Client
	log       *slog.Logger
}

// NewClient builds a client against the given Firestore endpoint, usually
// https://firestore.googleapis.com/v1.
func NewClient(firestoreBase, projectID string, tokens TokenSource, log *slog.Logger) *Client {
	return &Client{
		base:      strings.TrimRight(firestoreBase, "/"),
		projectID: projectID,
		tokens:    tokens,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log.With("component", "tracker"),
	}
}

// Children lists the child profiles on the account.
func (c *Client) Children(ctx context.Context) ([]Child, error) {
	sess, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracker: children: %w", err)
	}
	parent := "users/" + sess.LocalID
	docs, err := c.runQuery(ctx, sess.IDToken, parent, collectionQuery(collectionChildren))
	if err != nil {
		return nil, fmt.Errorf("tracker: children: %w", err)
	}
	children := make([]Child, 0, len(docs))
	for _, doc := range docs {
		children = append(children, childFromDocument(doc))
	}
	c.log.Debug("listed children", "count", len(children))
	return children, nil
}

// SleepIntervals returns sleep records with start in [startUnix, endUnix).
func (c *Client) SleepIntervals(ctx context.Context, childUID string, startUnix, endUnix int64) ([]SleepInterval, error) {
	docs, err := c.queryRange(ctx, childUID, collectionSleep, startUnix, endUnix)
	if err != nil {
		return nil, err
	}
	out := make([]SleepInterval, 0, len(docs))
	for _, doc := range docs {
		out = append(out, sleepFromFields(docFields(doc)))
	}
	return out, nil
}

// FeedIntervals returns feeding records, nursing and bottle alike, with
// start in [startUnix, endUnix).
func (c *Client) FeedIntervals(ctx context.Context, childUID string, startUnix, endUnix int64) ([]FeedInterval, error) {
	docs, err := c.queryRange(ctx, childUID, collectionFeed, startUnix, endUnix)
	if err != nil {
		return nil, err
	}
	out := make([]FeedInterval, 0, len(docs))
	for _, doc := range docs {
		out = append(out, feedFromFields(docFields(doc)))
	}
	return out, nil
}

// DiaperChanges returns diaper records with start in [startUnix, endUnix).
func (c *Client) DiaperChanges(ctx context.Context, childUID string, startUnix, endUnix int64) ([]DiaperChange, error) {
	docs, err := c.queryRange(ctx, childUID, collectionDiaper, startUnix, endUnix)
	if err != nil {
		return nil, err
	}
	out := make([]DiaperChange, 0, len(docs))
	for _, doc := range docs {
		out = append(out, diaperFromFields(docFields(doc)))
	}
	return out, nil
}

// GrowthEntries returns growth measurements with start in [startUnix, endUnix).
func (c *Client) GrowthEntries(ctx context.Context, childUID string, startUnix, endUnix int64) ([]GrowthEntry, error) {
	docs, err := c.queryRange(ctx, childUID, collectionGrowth, startUnix, endUnix)
	if err != nil {
		return nil, err
	}
	out := make([]GrowthEntry, 0, len(docs))
	for _, doc := range docs {
		out = append(out, growthFromFields(docFields(doc)))
	}
	return out, nil
}

func (c *Client) queryRange(ctx context.Context, childUID, collection string, startUnix, endUnix int64) ([]*fsDocument, error) {
	sess, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracker: %s: %w", collection, err)
	}
	parent := fmt.Sprintf("users/%s/children/%s", sess.LocalID, childUID)
	docs, err := c.runQuery(ctx, sess.IDToken, parent, rangeQuery(collection, startField, startUnix, endUnix))
	if err != nil {
		return nil, fmt.Errorf("tracker: %s: %w", collection, err)
	}
	c.log.Debug("query done", "collection", collection, "child", childUID, "count", len(docs))
	return docs, nil
}

// runQuery posts a structured query under the given parent document and
// returns the matched documents. Rows without a document are bookkeeping
// entries (readTime only) and get skipped.
func (c *Client) runQuery(ctx context.Context, token, parent string, q runQueryRequest) ([]*fsDocument, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	endpoint := fmt.Sprintf("%s/projects/%s/databases/(default)/documents/%s:runQuery", c.base, c.projectID, parent)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var rows []queryRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	docs := make([]*fsDocument, 0, len(rows))
	for _, row := range rows {
		if row.Document == nil {
			continue
		}
		docs = append(docs, row.Document)
	}
	return docs, nil
}

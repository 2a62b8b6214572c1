// Package skill implements the custom web-API skill that the document
// skillset calls to chunk and embed each document.
package skill

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"golang.org/x/sync/errgroup"
)

// Defaults for Options.
const (
	DefaultChunkSize     = 1000
	DefaultChunkOverlap  = 200
	DefaultMaxTextLength = 7000
	DefaultParallelism   = 4

	// maxRequestBytes bounds a single skill request body.
	maxRequestBytes = 32 << 20
)

// Options configures a Handler.
type Options struct {
	ChunkSize     int
	ChunkOverlap  int
	MaxTextLength int
	// Parallelism bounds how many records of one request embed at once.
	Parallelism int
	// APIKey, when set, must match the api-key request header.
	APIKey string
	Logger *slog.Logger
}

// Handler serves the skill protocol.
type Handler struct {
	embedder Embedder
	opts     Options
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewHandler returns a handler that embeds with e.
func NewHandler(e Embedder, opts Options) *Handler {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if opts.MaxTextLength == 0 {
		opts.MaxTextLength = DefaultMaxTextLength
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{embedder: e, opts: opts, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /api/embed", h.handleEmbed)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Request is the body the search service posts to a web-API skill.
type Request struct {
	Values []RequestRecord `json:"values"`
}

// RequestRecord is one document.
type RequestRecord struct {
	RecordID string     `json:"recordId"`
	Data     RecordData `json:"data"`
}

// RecordData carries the skill inputs.
type RecordData struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Filepath   string `json:"filepath"`
	FieldName  string `json:"fieldname"`
}

// Response is the body returned to the search service.
type Response struct {
	Values []ResponseRecord `json:"values"`
}

// ResponseRecord is the result for one RequestRecord.
type ResponseRecord struct {
	RecordID string        `json:"recordId"`
	Data     ResponseData  `json:"data"`
	Errors   []RecordIssue `json:"errors"`
	Warnings []RecordIssue `json:"warnings"`
}

// ResponseData carries the skill outputs.
type ResponseData struct {
	Chunks []ChunkOutput `json:"chunks"`
}

// RecordIssue is an error or warning attached to one record.
type RecordIssue struct {
	Message string `json:"message"`
}

// ChunkOutput is one chunk as the knowledge-store projection reads it.
type ChunkOutput struct {
	Content           string            `json:"content"`
	Title             string            `json:"title"`
	Hash              string            `json:"hash"`
	EmbeddingMetadata EmbeddingMetadata `json:"embedding_metadata"`
}

// EmbeddingMetadata locates a chunk in its source document.
type EmbeddingMetadata struct {
	FieldName string    `json:"fieldname"`
	DocID     string    `json:"docid"`
	Index     int       `json:"index"`
	Offset    int       `json:"offset"`
	Length    int       `json:"length"`
	Embedding []float32 `json:"embedding"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"model":      h.embedder.ModelName(),
		"dimensions": h.embedder.Dimensions(),
	})
}

func (h *Handler) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if h.opts.APIKey != "" &&
		subtle.ConstantTimeCompare([]byte(r.Header.Get("api-key")), []byte(h.opts.APIKey)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api-key"})
		return
	}

	var req Request
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	start := time.Now()
	resp := h.Process(r.Context(), req)

	failed := 0
	for _, v := range resp.Values {
		if len(v.Errors) > 0 {
			failed++
		}
	}
	h.logger.Info("skill_request",
		slog.Int("records", len(req.Values)),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))

	writeJSON(w, http.StatusOK, resp)
}

// Process runs every record. Record failures are reported in the record,
// never as a request failure, so one bad document cannot fail its batch.
func (h *Handler) Process(ctx context.Context, req Request) Response {
	out := Response{Values: make([]ResponseRecord, len(req.Values))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Parallelism)
	for i, rec := range req.Values {
		g.Go(func() error {
			out.Values[i] = h.processRecord(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (h *Handler) processRecord(ctx context.Context, rec RequestRecord) ResponseRecord {
	res := ResponseRecord{
		RecordID: rec.RecordID,
		Data:     ResponseData{Chunks: []ChunkOutput{}},
		Errors:   []RecordIssue{},
		Warnings: []RecordIssue{},
	}
	fail := func(msg string) ResponseRecord {
		res.Errors = append(res.Errors, RecordIssue{Message: msg})
		return res
	}

	if rec.RecordID == "" {
		return fail("recordId is required")
	}
	text := CleanText(rec.Data.Text)
	if text == "" {
		res.Warnings = append(res.Warnings, RecordIssue{Message: "document has no text to embed"})
		return res
	}
	text, truncated := Truncate(text, h.opts.MaxTextLength)
	if truncated {
		res.Warnings = append(res.Warnings, RecordIssue{
			Message: fmt.Sprintf("text truncated to %d characters", h.opts.MaxTextLength),
		})
	}

	chunks := Split(text, h.opts.ChunkSize, h.opts.ChunkOverlap)
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	vecs, err := h.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		h.logger.Warn("skill_embed_failed",
			slog.String("record_id", rec.RecordID),
			slog.String("error", err.Error()))
		return fail(err.Error())
	}
	if len(vecs) != len(chunks) {
		return fail(fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vecs), len(chunks)))
	}
	for _, v := range vecs {
		if err := checkDimensions(v, h.embedder.Dimensions()); err != nil {
			return fail(err.Error())
		}
	}

	fieldName := rec.Data.FieldName
	if fieldName == "" {
		fieldName = "content"
	}
	title := path.Base(rec.Data.Filepath)
	if rec.Data.Filepath == "" {
		title = ""
	}
	for i, c := range chunks {
		sum := sha256.Sum256([]byte(c.Content))
		res.Data.Chunks = append(res.Data.Chunks, ChunkOutput{
			Content: c.Content,
			Title:   title,
			Hash:    hex.EncodeToString(sum[:]),
			EmbeddingMetadata: EmbeddingMetadata{
				FieldName: fieldName,
				DocID:     rec.Data.DocumentID,
				Index:     i,
				Offset:    c.Offset,
				Length:    c.Length,
				Embedding: vecs[i],
			},
		})
	}
	return res
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

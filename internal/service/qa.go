// Package service implements the question-answering pipeline: validate,
// resolve the document namespace, index or reuse the retrieval index,
// search, build context and citations, invoke the model with conversation
// history, and format the final answer.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragbot/internal/citation"
	"ragbot/internal/domain"
	"ragbot/internal/memory"
	"ragbot/internal/namespace"
	"ragbot/internal/retriever"
)

// MaxQueryLength is the longest accepted question, in characters.
const MaxQueryLength = 5000

// Input validation errors. These are reported to the user directly and
// never reach the pipeline.
var (
	ErrNoFiles      = errors.New("no documents supplied")
	ErrEmptyQuery   = errors.New("empty query")
	ErrQueryTooLong = errors.New("query too long")
)

const noResultsAnswer = "No relevant information found."

// DocumentLoader extracts ordered per-page text from a document file.
type DocumentLoader interface {
	Load(path string) ([]domain.Page, error)
}

// State is caller-supplied session state, mutated in place so the session
// identifier persists across queries within one UI session.
type State struct {
	SessionID string
}

// Request is one question against a set of uploaded documents.
type Request struct {
	Files            []string
	Query            string
	State            *State
	PersistentMemory bool
}

// Response carries the final user-visible answer and echoes the query.
type Response struct {
	Answer string
	Query  string
}

// Service is the query orchestrator. Construct once per process; safe for
// concurrent use.
type Service struct {
	loader    DocumentLoader
	chunker   domain.Chunker
	retriever *retriever.Manager
	memory    *memory.Manager
	model     domain.ChatModel
	prompt    memory.PromptBuilder
	keywords  []string
	logger    *zap.Logger
}

// NewService assembles the pipeline. keywords gates the citations block:
// it is appended only when the lowercased query contains one of them.
func NewService(loader DocumentLoader, chunker domain.Chunker, retr *retriever.Manager, mem *memory.Manager, model domain.ChatModel, prompt memory.PromptBuilder, keywords []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		loader:    loader,
		chunker:   chunker,
		retriever: retr,
		memory:    mem,
		model:     model,
		prompt:    prompt,
		keywords:  keywords,
		logger:    logger,
	}
}

// Validate checks the request inputs without running the pipeline.
func Validate(req Request) error {
	if len(req.Files) == 0 {
		return ErrNoFiles
	}
	if strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}
	if utf8.RuneCountInString(req.Query) > MaxQueryLength {
		return ErrQueryTooLong
	}
	return nil
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoFiles):
		return "Upload at least one PDF."
	case errors.Is(err, ErrEmptyQuery):
		return "Ask a question."
	case errors.Is(err, ErrQueryTooLong):
		return fmt.Sprintf("Question too long (max %d characters).", MaxQueryLength)
	}
	return fmt.Sprintf("Error processing request: %v", err)
}

// Answer runs one query end to end. It never panics or returns an error:
// validation failures and internal faults both come back as user-visible
// answer text, so a broken query cannot take down the host loop.
func (s *Service) Answer(ctx context.Context, req Request) Response {
	if req.State == nil {
		req.State = &State{}
	}
	if err := Validate(req); err != nil {
		return Response{Answer: userMessage(err), Query: req.Query}
	}

	start := time.Now()
	answer, err := func() (answer string, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("query pipeline panicked",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = fmt.Errorf("%v", r)
			}
		}()
		return s.answer(ctx, req, start)
	}()
	if err != nil {
		s.logger.Error("query failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)))
		return Response{Answer: userMessage(err), Query: req.Query}
	}
	return Response{Answer: answer, Query: req.Query}
}

func (s *Service) answer(ctx context.Context, req Request, start time.Time) (string, error) {
	ns := namespace.Derive(req.Files)
	handle, err := s.retriever.Resolve(ctx, ns, func() ([]domain.Chunk, error) {
		return s.loadChunks(req.Files)
	})
	if err != nil {
		return "", err
	}
	setupDone := time.Now()

	results, err := s.retriever.Search(ctx, handle, req.Query, 0)
	if err != nil {
		return "", err
	}
	searchDone := time.Now()
	if len(results) == 0 {
		return noResultsAnswer, nil
	}

	contextText, citations := citation.Build(results)

	if req.State.SessionID == "" {
		req.State.SessionID = "session-" + uuid.NewString()
	}
	answer, err := s.memory.InvokeWithHistory(ctx, s.model, s.prompt,
		req.State.SessionID, req.PersistentMemory, req.Query, contextText)
	if err != nil {
		return "", err
	}
	llmDone := time.Now()

	if req.PersistentMemory {
		// The answer is already computed; a failed save loses durability,
		// not the response.
		if err := s.memory.SavePersistent(req.State.SessionID, req.Query, answer); err != nil {
			s.logger.Error("persisting conversation turn failed",
				zap.String("session", req.State.SessionID), zap.Error(err))
		}
	}

	if citations != "" && s.wantsCitations(req.Query) {
		answer += "\n\nSources & Citations\n" + citations
	}

	s.logger.Info("query answered",
		zap.String("namespace", ns),
		zap.String("session", req.State.SessionID),
		zap.Int("results", len(results)),
		zap.Duration("setup", setupDone.Sub(start)),
		zap.Duration("search", searchDone.Sub(setupDone)),
		zap.Duration("llm", llmDone.Sub(searchDone)),
		zap.Duration("total", time.Since(start)))
	return answer, nil
}

func (s *Service) loadChunks(files []string) ([]domain.Chunk, error) {
	var pages []domain.Page
	for _, file := range files {
		filePages, err := s.loader.Load(file)
		if err != nil {
			return nil, err
		}
		pages = append(pages, filePages...)
	}
	return s.chunker.Chunk(pages)
}

func (s *Service) wantsCitations(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range s.keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

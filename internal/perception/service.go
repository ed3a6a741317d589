package perception

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rescuecore/internal/logging"
	"rescuecore/internal/types"
)

// DefaultTopK is the number of similar cases requested when the caller does
// not say otherwise.
const DefaultTopK = 5

// CaseSearcher retrieves historical incidents resembling the current one.
// An empty result is valid and not an error.
type CaseSearcher interface {
	SearchSimilarCases(ctx context.Context, queryText, disasterTypeHint string, topK int) ([]types.SimilarCase, error)
}

// Result is the understanding stage output.
type Result struct {
	ParsedDisaster    *types.ParsedDisaster
	SimilarCases      []types.SimilarCase
	Summary           string
	PhysicsCalibrated bool

	// RAGWarning notes a recovered case-search failure. The run proceeds.
	RAGWarning string

	LLMCalls int
	RAGCalls int
}

// Service runs the disaster understanding stage: an LLM parse and a
// similar-case search dispatched concurrently, followed by synchronous
// physics calibration of the parse result.
type Service struct {
	llm        LLMClient
	cases      CaseSearcher
	llmTimeout time.Duration
	ragTimeout time.Duration
	topK       int
}

// NewService creates an understanding service. A nil CaseSearcher disables
// similar-case retrieval.
func NewService(llm LLMClient, cases CaseSearcher, llmTimeout, ragTimeout time.Duration) *Service {
	if llmTimeout <= 0 {
		llmTimeout = 120 * time.Second
	}
	if ragTimeout <= 0 {
		ragTimeout = 10 * time.Second
	}
	return &Service{
		llm:        llm,
		cases:      cases,
		llmTimeout: llmTimeout,
		ragTimeout: ragTimeout,
		topK:       DefaultTopK,
	}
}

// Understand produces the ParsedDisaster and SimilarCases for a request.
// The parse is required; the case search is best-effort and its failure is
// recorded in Result.RAGWarning instead of the returned error. On a parse
// failure the Result still carries whatever the case search found.
func (s *Service) Understand(ctx context.Context, req *types.Request) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryPerception, "understand")
	defer timer.Stop()

	result := &Result{SimilarCases: []types.SimilarCase{}}

	hint := req.DisasterTypeHint()
	if hint == "" {
		hint = "earthquake"
	}

	var (
		mu       sync.Mutex
		parsed   *types.ParsedDisaster
		parseErr error
	)

	// Both calls are independent: each records its own outcome and returns
	// nil, so a failure in one never cancels the other.
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		tctx, cancel := context.WithTimeout(egCtx, s.llmTimeout)
		defer cancel()
		p, err := ParseDisaster(tctx, s.llm, req.DisasterDescription, req.StructuredInput)
		mu.Lock()
		parsed, parseErr = p, err
		result.LLMCalls++
		mu.Unlock()
		return nil
	})

	if s.cases != nil {
		eg.Go(func() error {
			tctx, cancel := context.WithTimeout(egCtx, s.ragTimeout)
			defer cancel()
			cases, err := s.cases.SearchSimilarCases(tctx, req.DisasterDescription, hint, s.topK)
			mu.Lock()
			defer mu.Unlock()
			result.RAGCalls++
			if err != nil {
				result.RAGWarning = fmt.Sprintf("similar-case search unavailable: %v", err)
				logging.PerceptionWarn("case search failed for event %s: %v", req.EventID, err)
				return nil
			}
			if cases != nil {
				result.SimilarCases = cases
			}
			return nil
		})
	}

	_ = eg.Wait()

	if parseErr != nil {
		logging.PerceptionError("parse failed for event %s: %v", req.EventID, parseErr)
		return result, fmt.Errorf("failed to parse disaster description: %w", parseErr)
	}

	mergeStructuredHints(parsed, req)
	result.PhysicsCalibrated = Calibrate(parsed)
	result.ParsedDisaster = parsed
	result.Summary = buildSummary(parsed, result.SimilarCases)

	logging.Perception("understood event %s: type=%s severity=%s cases=%d calibrated=%v",
		req.EventID, parsed.DisasterType, parsed.Severity, len(result.SimilarCases), result.PhysicsCalibrated)
	return result, nil
}

// Case enrichment limits.
const maxCaseNotes = 3

// EnhanceWithCases folds retrieved case knowledge into the parsed record.
// Cases arrive sorted by similarity descending, so the first lessons kept
// are the most relevant ones. A nil parse or empty case list is a no-op.
func (s *Service) EnhanceWithCases(parsed *types.ParsedDisaster, cases []types.SimilarCase) {
	if parsed == nil || len(cases) == 0 {
		return
	}

	parsed.SetInfo("similar_case_count", len(cases))

	var lessons, practices []string
	for _, c := range cases {
		for _, l := range c.Lessons {
			if len(lessons) < maxCaseNotes {
				lessons = append(lessons, l)
			}
		}
		for _, p := range c.BestPractices {
			if len(practices) < maxCaseNotes {
				practices = append(practices, p)
			}
		}
	}
	if len(lessons) > 0 {
		parsed.SetInfo("historical_lessons", lessons)
	}
	if len(practices) > 0 {
		parsed.SetInfo("historical_best_practices", practices)
	}
	logging.PerceptionDebug("enhanced with %d cases: %d lessons, %d best practices",
		len(cases), len(lessons), len(practices))
}

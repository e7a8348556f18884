package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sifan077/PowerLink/internal/app/repository"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
	"go.uber.org/zap"
)

const (
	codeAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	DefaultCodeLength = 7
	MaxCodeLength     = 20

	defaultFilterCapacity = 1_000_000
	defaultFilterFPRate   = 0.01
	warmBatchSize         = 1000
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Aliases that would shadow service routes.
var reservedAliases = map[string]struct{}{
	"api":     {},
	"health":  {},
	"metrics": {},
}

// GenerateCode returns a random code of the given length over [A-Za-z0-9].
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}

	result := make([]byte, length)
	base := big.NewInt(int64(len(codeAlphabet)))
	for i := range result {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		result[i] = codeAlphabet[n.Int64()]
	}
	return string(result), nil
}

// ValidateAlias checks a user-chosen short code against the code constraints.
func ValidateAlias(alias string) error {
	if alias == "" || len(alias) > MaxCodeLength {
		return invalid("customAlias", fmt.Sprintf("must be 1-%d characters", MaxCodeLength))
	}
	if !aliasPattern.MatchString(alias) {
		return invalid("customAlias", "can only contain letters, numbers, hyphens, and underscores")
	}
	if _, reserved := reservedAliases[alias]; reserved {
		return invalid("customAlias", "is reserved")
	}
	return nil
}

// CodeGeneratorConfig tunes code assignment.
type CodeGeneratorConfig struct {
	Length int
	// MaxAttempts bounds retries; 0 retries until the context ends.
	MaxAttempts int
}

// CodeGenerator assigns unique random short codes. A bloom filter of known
// codes skips the existence query for fresh candidates; the store's unique
// index has the final say.
type CodeGenerator struct {
	links       repository.LinkRepository
	length      int
	maxAttempts int
	candidate   func(length int) (string, error)
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCodeGenerator creates a generator backed by links.
func NewCodeGenerator(links repository.LinkRepository, cfg CodeGeneratorConfig, m *metrics.Metrics, log *zap.Logger) *CodeGenerator {
	length := cfg.Length
	if length <= 0 || length > MaxCodeLength {
		length = DefaultCodeLength
	}
	return &CodeGenerator{
		links:       links,
		length:      length,
		maxAttempts: cfg.MaxAttempts,
		candidate:   GenerateCode,
		metrics:     m,
		logger:      logger.Component(log, "code_generator"),
		filter:      bloom.NewWithEstimates(defaultFilterCapacity, defaultFilterFPRate),
	}
}

// Warm loads every stored code into the filter.
func (g *CodeGenerator) Warm(ctx context.Context) error {
	var loaded int
	err := g.links.EachCode(ctx, warmBatchSize, func(codes []string) error {
		g.mu.Lock()
		for _, code := range codes {
			g.filter.AddString(code)
		}
		g.mu.Unlock()
		loaded += len(codes)
		return nil
	})
	if err != nil {
		return fmt.Errorf("warm code filter: %w", err)
	}
	g.logger.Info("code filter warmed", zap.Int("codes", loaded))
	return nil
}

// Remember records code as taken.
func (g *CodeGenerator) Remember(code string) {
	g.mu.Lock()
	g.filter.AddString(code)
	g.mu.Unlock()
}

func (g *CodeGenerator) mightExist(code string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filter.TestString(code)
}

// Assign draws candidates until insert accepts one. insert must persist the
// link under code and return repository.ErrDuplicateCode when it is taken.
func (g *CodeGenerator) Assign(ctx context.Context, insert func(ctx context.Context, code string) error) (string, error) {
	for attempt := 1; g.maxAttempts == 0 || attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrCodeGeneration, err)
		}

		code, err := g.candidate(g.length)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCodeGeneration, err)
		}

		if g.mightExist(code) {
			exists, err := g.links.ExistsByCode(ctx, code)
			if err != nil {
				return "", fmt.Errorf("check code: %w", err)
			}
			if exists {
				g.collision(code, attempt)
				continue
			}
		}

		err = insert(ctx, code)
		if err == nil {
			g.Remember(code)
			return code, nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return "", err
		}
		g.Remember(code)
		g.collision(code, attempt)
	}
	return "", fmt.Errorf("%w: no free code after %d attempts", ErrCodeGeneration, g.maxAttempts)
}

func (g *CodeGenerator) collision(code string, attempt int) {
	g.metrics.CodeCollision()
	g.logger.Debug("short code collision", zap.String("code", code), zap.Int("attempt", attempt))
}

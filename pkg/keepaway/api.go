package keepaway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"keepaway/internal/agent"
	"keepaway/internal/grammar"
	"keepaway/internal/model"
	"keepaway/internal/sim"
	"keepaway/internal/stats"
	"keepaway/internal/storage"
)

const (
	defaultDBPath   = "keepaway.db"
	defaultRunLimit = 20

	// Fixed-width so records sort lexically by time.
	createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *zap.Logger
}

type Client struct {
	store       storage.Store
	storeReady  bool
	logger      *zap.Logger
	now         func() time.Time
	newRunID    func() string
	storeKind   string
	storeDBPath string
}

// InputError reports a troop description that could not be read.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("read input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Input names a troop description either by file path or by content. Data
// wins when both are set.
type Input struct {
	Path string
	Data []byte
}

type SolveRequest struct {
	Input
	// Zero-valued policies fall back to sim.DivideFloor3 and sim.ModulusOnly.
	DivideFloor sim.Policy
	ModulusOnly sim.Policy
}

type PolicySummary struct {
	RunID       string
	Policy      string
	Rounds      int
	AgentIDs    []int
	Inspections []uint64
	Product     uint64
}

type SolveSummary struct {
	DivideFloor PolicySummary
	ModulusOnly PolicySummary
}

type SimulateRequest struct {
	Input
	Policy sim.Policy
	// Every > 0 reports checkpoints to OnRound (see sim.WithRoundHook).
	Every   int
	OnRound func(sim.RoundSnapshot)
}

type ValidateSummary struct {
	Agents int
	Items  int
	// Modulus is zero when the product of divisors overflows uint64. Such a
	// troop still runs under divide-floor relief but not modulus-only.
	Modulus         uint64
	ModulusOverflow bool
	Canonical       string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	InputDigest  string
	InputPath    string
	Policy       string
	Rounds       int
	Inspections  []uint64
	Product      uint64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:       store,
		logger:      logger,
		now:         time.Now,
		newRunID:    uuid.NewString,
		storeKind:   storeKind,
		storeDBPath: dbPath,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

// Solve runs both canonical policies on independent copies of the parsed
// troop and records each run.
func (c *Client) Solve(ctx context.Context, req SolveRequest) (SolveSummary, error) {
	divide := withDefaults(req.DivideFloor, sim.DivideFloor3)
	modulus := withDefaults(req.ModulusOnly, sim.ModulusOnly)

	troop, data, err := c.load(req.Input)
	if err != nil {
		return SolveSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return SolveSummary{}, err
	}

	first, err := c.run(ctx, troop, data, req.Path, divide)
	if err != nil {
		return SolveSummary{}, err
	}
	second, err := c.run(ctx, troop, data, req.Path, modulus)
	if err != nil {
		return SolveSummary{}, err
	}
	return SolveSummary{DivideFloor: first, ModulusOnly: second}, nil
}

// Simulate runs a single policy, optionally reporting round checkpoints.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (PolicySummary, error) {
	if req.Policy.Rounds <= 0 {
		return PolicySummary{}, errors.New("policy rounds must be > 0")
	}
	troop, data, err := c.load(req.Input)
	if err != nil {
		return PolicySummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return PolicySummary{}, err
	}

	var opts []sim.Option
	if req.Every > 0 {
		opts = append(opts, sim.WithRoundHook(req.Every, req.OnRound))
	}
	return c.run(ctx, troop, data, req.Path, req.Policy, opts...)
}

// Validate parses and checks a troop without simulating it.
func (c *Client) Validate(_ context.Context, in Input) (ValidateSummary, error) {
	troop, _, err := c.load(in)
	if err != nil {
		return ValidateSummary{}, err
	}
	summary := ValidateSummary{
		Agents:    len(troop),
		Items:     troop.ItemCount(),
		Canonical: grammar.Format(troop),
	}
	modulus, err := troop.Modulus()
	if err != nil {
		// Parse has already validated every divisor, so only overflow remains.
		c.logger.Debug("modulus unavailable", zap.Error(err))
		summary.ModulusOverflow = true
		return summary, nil
	}
	summary.Modulus = modulus
	return summary, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunLimit
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	records, err := c.store.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(records))
	for _, r := range records {
		out = append(out, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAtUTC,
			InputDigest:  r.InputDigest,
			InputPath:    r.InputPath,
			Policy:       r.Policy,
			Rounds:       r.Rounds,
			Inspections:  r.Inspections,
			Product:      r.Product,
		})
	}
	return out, nil
}

func (c *Client) run(ctx context.Context, troop agent.Troop, data []byte, path string, policy sim.Policy, opts ...sim.Option) (PolicySummary, error) {
	opts = append([]sim.Option{sim.WithLogger(c.logger)}, opts...)
	result, err := sim.Run(troop, policy, opts...)
	if err != nil {
		return PolicySummary{}, err
	}
	product, err := stats.TopTwoProduct(result.Inspections)
	if err != nil {
		return PolicySummary{}, fmt.Errorf("%s: %w", policy.Name(), err)
	}

	record := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              c.newRunID(),
		CreatedAtUTC:    c.now().UTC().Format(createdAtLayout),
		InputDigest:     digest(data),
		InputPath:       path,
		Policy:          policy.Name(),
		Rounds:          result.Rounds,
		Modulus:         result.Modulus,
		Inspections:     result.Inspections,
		Product:         product,
	}
	if policy.Relief == sim.ReliefDivideFloor {
		record.Divisor = policy.Divisor
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return PolicySummary{}, fmt.Errorf("save run %s: %w", record.ID, err)
	}
	c.logger.Info("run recorded",
		zap.String("run_id", record.ID),
		zap.String("policy", record.Policy),
		zap.Uint64("product", product),
	)

	return PolicySummary{
		RunID:       record.ID,
		Policy:      record.Policy,
		Rounds:      record.Rounds,
		AgentIDs:    troop.IDs(),
		Inspections: result.Inspections,
		Product:     product,
	}, nil
}

func (c *Client) load(in Input) (agent.Troop, []byte, error) {
	data := in.Data
	if data == nil {
		if in.Path == "" {
			return nil, nil, errors.New("input path is required")
		}
		var err error
		data, err = os.ReadFile(in.Path)
		if err != nil {
			return nil, nil, &InputError{Path: in.Path, Err: err}
		}
	}
	troop, err := grammar.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	c.logger.Debug("troop parsed",
		zap.String("path", in.Path),
		zap.Int("agents", len(troop)),
		zap.Int("items", troop.ItemCount()),
	)
	return troop, data, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.storeReady {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init %s store: %w", c.storeKind, err)
	}
	c.storeReady = true
	c.logger.Debug("store ready", zap.String("kind", c.storeKind), zap.String("db_path", c.storeDBPath))
	return nil
}

func withDefaults(p, canonical sim.Policy) sim.Policy {
	p.Relief = canonical.Relief
	if p.Rounds <= 0 {
		p.Rounds = canonical.Rounds
	}
	if p.Relief == sim.ReliefDivideFloor && p.Divisor == 0 {
		p.Divisor = canonical.Divisor
	}
	return p
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package sim

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"keepaway/internal/agent"
	"keepaway/internal/expr"
	"keepaway/internal/grammar"
)

func exampleTroop(t *testing.T) agent.Troop {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "fixtures", "example.txt"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	troop, err := grammar.ParseString(string(data))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return troop
}

var identity = expr.Expression{Op: expr.Add, LHS: expr.Old{}, RHS: expr.Literal(0)}

// passThrough keeps values unchanged under a divide-floor policy.
var passThrough = Policy{Relief: ReliefDivideFloor, Rounds: 1, Divisor: 1}

func TestRunDivideFloorExample(t *testing.T) {
	troop := exampleTroop(t)
	result, err := Run(troop, DivideFloor3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]uint64{101, 95, 7, 105}, result.Inspections); diff != "" {
		t.Fatalf("inspections mismatch (-want +got):\n%s", diff)
	}
	want := [][]uint64{{10, 12, 14, 26, 34}, {245, 93, 53, 199, 115}, {}, {}}
	if diff := cmp.Diff(want, result.Holdings); diff != "" {
		t.Fatalf("holdings mismatch (-want +got):\n%s", diff)
	}
	if result.Modulus != 0 {
		t.Fatalf("divide-floor run reported modulus %d", result.Modulus)
	}
}

func TestRunDivideFloorFirstRound(t *testing.T) {
	policy := DivideFloor3
	policy.Rounds = 1
	result, err := Run(exampleTroop(t), policy)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := [][]uint64{{20, 23, 27, 26}, {2080, 25, 167, 207, 401, 1046}, {}, {}}
	if diff := cmp.Diff(want, result.Holdings); diff != "" {
		t.Fatalf("holdings after round 1 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{2, 4, 3, 5}, result.Inspections); diff != "" {
		t.Fatalf("inspections after round 1 mismatch (-want +got):\n%s", diff)
	}
}

func TestRunModulusOnlyExample(t *testing.T) {
	troop := exampleTroop(t)
	checkpoints := map[int][]uint64{}
	result, err := Run(troop, ModulusOnly, WithRoundHook(1000, func(s RoundSnapshot) {
		checkpoints[s.Round] = s.Inspections
	}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]uint64{52166, 47830, 1938, 52013}, result.Inspections); diff != "" {
		t.Fatalf("inspections mismatch (-want +got):\n%s", diff)
	}
	if result.Modulus != 23*19*13*17 {
		t.Fatalf("modulus=%d want=%d", result.Modulus, 23*19*13*17)
	}

	wantCheckpoints := map[int][]uint64{
		1:    {2, 4, 3, 6},
		1000: {5204, 4792, 199, 5192},
		5000: {26075, 23921, 974, 26000},
	}
	for round, want := range wantCheckpoints {
		if diff := cmp.Diff(want, checkpoints[round]); diff != "" {
			t.Fatalf("round %d inspections mismatch (-want +got):\n%s", round, diff)
		}
	}
	if len(checkpoints) != 11 {
		t.Fatalf("expected 11 checkpoints (1, 1000..10000), got %d", len(checkpoints))
	}
}

func TestRunModulusOnlyTwentyRounds(t *testing.T) {
	policy := ModulusOnly
	policy.Rounds = 20
	result, err := Run(exampleTroop(t), policy)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]uint64{99, 97, 8, 103}, result.Inspections); diff != "" {
		t.Fatalf("inspections mismatch (-want +got):\n%s", diff)
	}
}

func TestRunLeavesInputUntouched(t *testing.T) {
	troop := exampleTroop(t)
	before := troop.Holdings()
	if _, err := Run(troop, DivideFloor3); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if diff := cmp.Diff(before, troop.Holdings()); diff != "" {
		t.Fatalf("run mutated caller troop (-want +got):\n%s", diff)
	}

	first, err := Run(troop, DivideFloor3)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	again, err := Run(exampleTroop(t), DivideFloor3)
	if err != nil {
		t.Fatalf("fresh run: %v", err)
	}
	if diff := cmp.Diff(first.Inspections, again.Inspections); diff != "" {
		t.Fatalf("reused troop diverged from fresh parse (-reused +fresh):\n%s", diff)
	}
}

func TestRoundOrderAndFIFO(t *testing.T) {
	troop := agent.Troop{
		{ID: 0, Items: agent.NewQueue(1, 2), Operation: identity, Divisor: 1, IfTrue: 1, IfFalse: 1},
		{ID: 1, Items: agent.NewQueue(10, 20), Operation: identity, Divisor: 1, IfTrue: 2, IfFalse: 2},
		{ID: 2, Operation: identity, Divisor: 1, IfTrue: 0, IfFalse: 0},
	}
	result, err := Run(troop, passThrough)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Agent 1 drains its resident items before the ones agent 0 threw this
	// round; agent 2 passes all four on in arrival order.
	if diff := cmp.Diff([][]uint64{{10, 20, 1, 2}, {}, {}}, result.Holdings); diff != "" {
		t.Fatalf("holdings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{2, 4, 4}, result.Inspections); diff != "" {
		t.Fatalf("inspections mismatch (-want +got):\n%s", diff)
	}
}

func TestSelfThrowIsInspectedInSameTurn(t *testing.T) {
	troop := agent.Troop{
		{ID: 0, Items: agent.NewQueue(2), Operation: expr.Expression{Op: expr.Add, LHS: expr.Old{}, RHS: expr.Literal(1)}, Divisor: 2, IfTrue: 1, IfFalse: 0},
		{ID: 1, Operation: identity, Divisor: 1, IfTrue: 0, IfFalse: 0},
	}
	policy := ModulusOnly
	policy.Rounds = 1
	result, err := Run(troop, policy)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// 2 -> 3 stays with agent 0, 3 -> 4 goes to agent 1, which returns it.
	if diff := cmp.Diff([]uint64{2, 1}, result.Inspections); diff != "" {
		t.Fatalf("inspections mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]uint64{{0}, {}}, result.Holdings); diff != "" {
		t.Fatalf("holdings mismatch (-want +got):\n%s", diff)
	}

	result, err = Run(troop, passThrough)
	if err != nil {
		t.Fatalf("divide run: %v", err)
	}
	if diff := cmp.Diff([][]uint64{{4}, {}}, result.Holdings); diff != "" {
		t.Fatalf("divide holdings mismatch (-want +got):\n%s", diff)
	}
}

func TestRunawaySelfThrowIsReported(t *testing.T) {
	troop := agent.Troop{
		{ID: 0, Operation: identity, Divisor: 1, IfTrue: 1, IfFalse: 1},
		{ID: 1, Items: agent.NewQueue(7), Operation: identity, Divisor: 1, IfTrue: 1, IfFalse: 1},
	}
	_, err := Run(troop, passThrough)
	if !errors.Is(err, ErrRunawayTurn) {
		t.Fatalf("expected ErrRunawayTurn, got %v", err)
	}
}

func TestItemsThrownBackwardWaitForNextRound(t *testing.T) {
	troop := agent.Troop{
		{ID: 0, Items: agent.NewQueue(5), Operation: identity, Divisor: 1, IfTrue: 1, IfFalse: 1},
		{ID: 1, Operation: identity, Divisor: 1, IfTrue: 0, IfFalse: 0},
	}
	result, err := Run(troop, passThrough)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([][]uint64{{5}, {}}, result.Holdings); diff != "" {
		t.Fatalf("holdings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{1, 1}, result.Inspections); diff != "" {
		t.Fatalf("inspections mismatch (-want +got):\n%s", diff)
	}
}

func TestRoutingFollowsDivisibility(t *testing.T) {
	var items []uint64
	for v := uint64(0); v < 60; v++ {
		items = append(items, v)
	}
	troop := agent.Troop{
		{ID: 0, Items: agent.NewQueue(items...), Operation: expr.Expression{Op: expr.Multiply, LHS: expr.Old{}, RHS: expr.Literal(7)}, Divisor: 3, IfTrue: 1, IfFalse: 2},
		{ID: 1, Operation: identity, Divisor: 1, IfTrue: 0, IfFalse: 0},
		{ID: 2, Operation: identity, Divisor: 1, IfTrue: 0, IfFalse: 0},
	}
	result, err := Run(troop, passThrough)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]uint64{60, 20, 40}, result.Inspections); diff != "" {
		t.Fatalf("inspections mismatch (-want +got):\n%s", diff)
	}
	// Agent 1 returns the divisible values before agent 2 returns the rest.
	back := result.Holdings[0]
	if len(back) != len(items) {
		t.Fatalf("items lost: got %d want %d", len(back), len(items))
	}
	for i, v := range back {
		if divisible := v%3 == 0; divisible != (i < 20) {
			t.Fatalf("value %d at position %d routed to the wrong branch", v, i)
		}
	}
}

func TestEmptyQueueContributesNothing(t *testing.T) {
	troop := agent.Troop{
		{ID: 0, Operation: identity, Divisor: 2, IfTrue: 1, IfFalse: 1},
		{ID: 1, Operation: identity, Divisor: 2, IfTrue: 0, IfFalse: 0},
	}
	result, err := Run(troop, ModulusOnly)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]uint64{0, 0}, result.Inspections); diff != "" {
		t.Fatalf("inspections mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRejectsBadTroops(t *testing.T) {
	troop := exampleTroop(t)
	troop[2].IfFalse = 9
	_, err := Run(troop, DivideFloor3)
	var cfgErr *agent.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Agent != 2 {
		t.Fatalf("expected ConfigError for agent 2, got %v", err)
	}

	huge := agent.Troop{
		{ID: 0, Items: agent.NewQueue(1), Operation: identity, Divisor: 1 << 40, IfTrue: 1, IfFalse: 1},
		{ID: 1, Operation: identity, Divisor: 1 << 40, IfTrue: 0, IfFalse: 0},
	}
	if _, err := Run(huge, ModulusOnly); !errors.Is(err, agent.ErrConfig) {
		t.Fatalf("expected modulus overflow ConfigError, got %v", err)
	}
}

func TestRunDetectsWorryOverflow(t *testing.T) {
	troop := agent.Troop{
		{
			ID:        0,
			Items:     agent.NewQueue(1 << 40),
			Operation: expr.Expression{Op: expr.Multiply, LHS: expr.Old{}, RHS: expr.Old{}},
			Divisor:   7,
			IfTrue:    1,
			IfFalse:   1,
		},
		{ID: 1, Operation: identity, Divisor: 1, IfTrue: 0, IfFalse: 0},
	}
	_, err := Run(troop, DivideFloor3)
	if !errors.Is(err, ErrWorryOverflow) {
		t.Fatalf("expected ErrWorryOverflow, got %v", err)
	}

	// The same troop stays bounded under modulus relief.
	if _, err := Run(troop, ModulusOnly); err != nil {
		t.Fatalf("modulus run: %v", err)
	}
}

func TestRunRejectsBadPolicy(t *testing.T) {
	troop := exampleTroop(t)
	for _, p := range []Policy{
		{Relief: ReliefDivideFloor, Rounds: 0, Divisor: 3},
		{Relief: ReliefDivideFloor, Rounds: 5, Divisor: 0},
		{Relief: ReliefKind(9), Rounds: 5},
	} {
		if _, err := Run(troop, p); err == nil {
			t.Fatalf("expected policy %+v to be rejected", p)
		}
	}
}

func TestRoundHookCarriesAgentOrdinals(t *testing.T) {
	troop := exampleTroop(t)
	for i := range troop {
		troop[i].ID = 10 + i
	}
	policy := ModulusOnly
	policy.Rounds = 2
	var snapshots []RoundSnapshot
	if _, err := Run(troop, policy, WithRoundHook(1, func(s RoundSnapshot) { snapshots = append(snapshots, s) })); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	for _, s := range snapshots {
		if diff := cmp.Diff([]int{10, 11, 12, 13}, s.AgentIDs); diff != "" {
			t.Fatalf("round %d ids mismatch (-want +got):\n%s", s.Round, diff)
		}
	}
}

func TestRunLogsCompletion(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	policy := DivideFloor3
	policy.Rounds = 4
	_, err := Run(exampleTroop(t), policy, WithLogger(zap.New(core)), WithRoundHook(2, nil))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := logs.FilterMessage("simulation finished").Len(); got != 1 {
		t.Fatalf("expected one completion entry, got %d", got)
	}
	// Checkpoints at rounds 1, 2 and 4.
	if got := logs.FilterMessage("round checkpoint").Len(); got != 3 {
		t.Fatalf("expected 3 checkpoint entries, got %d", got)
	}
}

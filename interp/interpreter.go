// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package interp implements the IR step engine: lifting bytes into cached
// StepState blocks, dispatching each micro-op against a PCodeState, and
// fanning out hook callbacks around every observable effect.
package interp

import (
	"math/big"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/concrete-ir/ircore/addr"
	"github.com/concrete-ir/ircore/hooks"
	"github.com/concrete-ir/ircore/intrinsics"
	"github.com/concrete-ir/ircore/lifter"
	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/step"
)

var log = logrus.WithField("component", "interp")

// Outcome is the result of dispatching one micro-op: either a branch
// request for the caller to apply to the cursor, or a halt.
type Outcome struct {
	Halted bool
	Err    error // set when Halted; nil means a clean stop
	Branch step.BranchRequest
}

var nextOutcome = Outcome{Branch: step.BranchRequest{Action: step.Next}}

// liftCache is the shared address -> lifted-block map, the only mutable
// resource forked instances share. A single read-write lock
// protects it; hold times are bounded to one lookup or one insert.
type liftCache struct {
	mu     sync.RWMutex
	blocks map[uint64]*step.Block
}

func newLiftCache() *liftCache {
	return &liftCache{blocks: make(map[uint64]*step.Block)}
}

func (c *liftCache) lookup(address uint64) (*step.Block, bool) {
	c.mu.RLock()
	b, ok := c.blocks[address]
	c.mu.RUnlock()
	return b, ok
}

// insert publishes block under address, returning whichever block ends up
// cached. A racing duplicate insert of an identical lift is benign: the
// first insert wins and both callers proceed with it.
func (c *liftCache) insert(address uint64, block *step.Block) *step.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.blocks[address]; ok {
		return existing
	}
	c.blocks[address] = block
	return block
}

func (c *liftCache) drop() {
	c.mu.Lock()
	c.blocks = make(map[uint64]*step.Block)
	c.mu.Unlock()
}

// Interpreter lifts and executes one program's worth of IR against a
// PCodeState.
type Interpreter struct {
	lift  lifter.Lifter
	ctx   any
	cache *liftCache

	Hooks      *hooks.Registry
	Intrinsics *intrinsics.Registry

	State *state.PCodeState

	memSpace    addr.Space
	sizeCeiling int
}

// New constructs an Interpreter over st, lifting through l (with mutable
// per-lifter context liftCtx), rejecting any operand wider than
// sizeCeiling bytes.
func New(l lifter.Lifter, liftCtx any, st *state.PCodeState, sizeCeiling int) *Interpreter {
	return &Interpreter{
		lift:        l,
		ctx:         liftCtx,
		cache:       newLiftCache(),
		Hooks:       hooks.NewRegistry(),
		Intrinsics:  intrinsics.NewRegistry(),
		State:       st,
		memSpace:    l.MemorySpace(),
		sizeCeiling: sizeCeiling,
	}
}

// Fork produces an independent Interpreter over a forked copy of the
// state. The lifter and the lift cache are shared with the parent; hooks
// and intrinsics are cloned so (un)registering in one instance never
// affects the other.
func (ip *Interpreter) Fork() (*Interpreter, error) {
	st, err := ip.State.Fork()
	if err != nil {
		return nil, err
	}
	return &Interpreter{
		lift:        ip.lift,
		ctx:         ip.ctx,
		cache:       ip.cache,
		Hooks:       ip.Hooks.Clone(),
		Intrinsics:  ip.Intrinsics.Clone(),
		State:       st,
		memSpace:    ip.memSpace,
		sizeCeiling: ip.sizeCeiling,
	}, nil
}

// InvalidateCache drops every cached lift result (e.g. after self-modifying
// code writes to a previously-lifted region).
func (ip *Interpreter) InvalidateCache() {
	ip.cache.drop()
}

// LiftAll pre-lifts every address in addrs across workers goroutines,
// merging results into the shared cache. Each worker uses its own lift
// context from newCtx; duplicate inserts into the cache are idempotent.
// Pre-lifting is
// not execution: no hooks fire and the program counter is untouched. The
// first lift failure is returned; remaining addresses still lift.
func (ip *Interpreter) LiftAll(addrs []uint64, newCtx func() any, workers int) error {
	if workers < 1 {
		workers = 1
	}
	work := make(chan uint64, len(addrs))
	for _, a := range addrs {
		work <- a
	}
	close(work)

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error
	for w := 0; w < workers; w++ {
		ctx := newCtx()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range work {
				if _, ok := ip.cache.lookup(a); ok {
					continue
				}
				if err := ip.liftInto(ctx, a); err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (ip *Interpreter) liftInto(ctx any, address uint64) error {
	bytes, err := ip.viewLiftWindow(address)
	if err != nil {
		return &LiftError{Address: address, Cause: err}
	}
	block, err := ip.lift.Lift(ctx, address, bytes)
	if err != nil {
		return &LiftError{Address: address, Cause: errors.Wrap(err, "lift")}
	}
	ip.cache.insert(address, block)
	return nil
}

// Lift returns the cached block at address, lifting and caching it on a
// miss. It also updates the program counter and fans out
// architectural_step hooks over the freshly (or previously) lifted block.
func (ip *Interpreter) Lift(address uint64) (*step.Block, *Outcome, error) {
	block, ok := ip.cache.lookup(address)
	if !ok {
		bytes, err := ip.viewLiftWindow(address)
		if err != nil {
			return nil, nil, &LiftError{Address: address, Cause: err}
		}
		block, err = ip.lift.Lift(ip.ctx, address, bytes)
		if err != nil {
			return nil, nil, &LiftError{Address: address, Cause: errors.Wrap(err, "lift")}
		}
		block = ip.cache.insert(address, block)
		log.WithField("address", address).Debug("lifted new block")
	}

	if err := ip.State.SetPC(address); err != nil {
		return nil, nil, err
	}

	for _, h := range ip.Hooks.All() {
		out := h.ArchitecturalStep(block)
		if out.Action == hooks.Halt {
			return block, &Outcome{Halted: true, Err: out.Err}, nil
		}
	}
	return block, nil, nil
}

// viewLiftWindow borrows the largest prefix (up to 16 bytes, the widest
// instruction any supported lifter needs) of memory at address that's
// actually mapped, shrinking the request when address sits near a segment
// boundary.
func (ip *Interpreter) viewLiftWindow(address uint64) ([]byte, error) {
	const maxWindow = 16
	var lastErr error
	for n := maxWindow; n >= 1; n-- {
		b, err := ip.State.Memory.ViewValues(address, n)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Step dispatches the op at cursor's current position against the
// Interpreter's state, fanning out operation_step hooks first.
func (ip *Interpreter) Step(cursor *step.State) (Outcome, error) {
	op, ok := cursor.Current()
	if !ok {
		return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: cursor.Fallthrough()}}, nil
	}

	for _, h := range ip.Hooks.All() {
		out := h.OperationStep(op)
		if out.Action == hooks.Halt {
			return Outcome{Halted: true, Err: out.Err}, nil
		}
	}

	return ip.dispatch(cursor, op)
}

func (ip *Interpreter) dispatch(cursor *step.State, op step.Op) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			if p, ok := r.(state.ConstantWritePanic); ok {
				out, err = Outcome{Halted: true, Err: &ProgrammerError{Reason: p.String()}}, nil
				return
			}
			panic(r)
		}
	}()

	switch op.Code {
	case step.OpCopy:
		return ip.execCopy(op)
	case step.OpLoad:
		return ip.execLoad(op)
	case step.OpStore:
		return ip.execStore(op)
	case step.OpBranch:
		return ip.execBranch(op)
	case step.OpCBranch:
		return ip.execCBranch(op)
	case step.OpIBranch:
		return ip.execIBranchOrCall(cursor, op, false)
	case step.OpICall:
		return ip.execIBranchOrCall(cursor, op, true)
	case step.OpCall:
		return ip.execCall(cursor, op)
	case step.OpReturn:
		return ip.execReturn(op)
	case step.OpIntrinsic:
		return ip.execIntrinsic(op)
	case step.OpSubpiece:
		return ip.execSubpiece(op)
	case step.OpPopCount:
		return ip.execPopCount(op)
	case step.OpFloatAdd, step.OpFloatSub, step.OpFloatMul, step.OpFloatDiv,
		step.OpFloatNeg, step.OpFloatAbs, step.OpFloatSqrt,
		step.OpFloatEqual, step.OpFloatNotEqual, step.OpFloatLess, step.OpFloatLessEqual,
		step.OpFloatIsNaN, step.OpFloatCeil, step.OpFloatFloor, step.OpFloatRound,
		step.OpFloatTruncToInt, step.OpIntToFloat, step.OpFloatToFloat:
		return ip.execFloat(op)
	default:
		return ip.execArith(op)
	}
}

// readOperand reads op's current value, fanning out the uniform
// OperandRead hook plus the kind-specific Memory/RegisterRead hook, and
// recovering from invalid accesses through the invalid-access hook chain.
func (ip *Interpreter) readOperand(op state.Operand) ([]byte, *Outcome, error) {
	if op.Size > ip.sizeCeiling {
		return nil, nil, &UnsupportedOperandSizeError{Size: op.Size, Ceiling: ip.sizeCeiling}
	}

	for _, h := range ip.Hooks.All() {
		out := h.OperandRead(op)
		if halted, o := haltOrValue(out); halted {
			return out.Bytes, o, nil
		}
	}

	switch op.Kind {
	case state.OperandAddress:
		for _, h := range ip.Hooks.All() {
			out := h.MemoryRead(ip.State.Memory, op.Value, op.Size)
			if halted, o := haltOrValue(out); halted {
				return out.Bytes, o, nil
			}
		}
	case state.OperandRegister:
		for _, h := range ip.Hooks.All() {
			out := h.RegisterRead(ip.State.Registers, op.Off, op.Size)
			if halted, o := haltOrValue(out); halted {
				return out.Bytes, o, nil
			}
		}
	}

	buf := make([]byte, op.Size)
	if err := ip.State.ReadOperand(op, buf); err != nil {
		bytes, recoverOut, retry, recErr := ip.recoverInvalidAccess(op, err, sourceFor(op, false))
		if recErr != nil {
			return nil, nil, recErr
		}
		if retry {
			if rerr := ip.State.ReadOperand(op, buf); rerr != nil {
				return nil, nil, err
			}
			return buf, nil, nil
		}
		return bytes, recoverOut, nil
	}
	return buf, nil, nil
}

// writeOperand writes in to op's target, then fans out the same hooks
// readOperand consults before its read, but here after the store, so a
// Halt from a write hook reflects state that has already changed.
func (ip *Interpreter) writeOperand(op state.Operand, in []byte) (*Outcome, error) {
	if op.Size > ip.sizeCeiling {
		return nil, &UnsupportedOperandSizeError{Size: op.Size, Ceiling: ip.sizeCeiling}
	}

	if werr := ip.State.WriteOperand(op, in); werr != nil {
		_, recoverOut, retry, recErr := ip.recoverInvalidAccess(op, werr, sourceFor(op, true))
		if recErr != nil {
			return nil, recErr
		}
		if !retry {
			return recoverOut, nil
		}
		if rerr := ip.State.WriteOperand(op, in); rerr != nil {
			return nil, werr
		}
	}

	for _, h := range ip.Hooks.All() {
		hout := h.OperandWrite(op, in)
		if hout.Action == hooks.Halt {
			return &Outcome{Halted: true, Err: hout.Err}, nil
		}
	}

	switch op.Kind {
	case state.OperandAddress:
		for _, h := range ip.Hooks.All() {
			hout := h.MemoryWrite(ip.State.Memory, op.Value, in)
			if hout.Action == hooks.Halt {
				return &Outcome{Halted: true, Err: hout.Err}, nil
			}
		}
	case state.OperandRegister:
		for _, h := range ip.Hooks.All() {
			hout := h.RegisterWrite(ip.State.Registers, op.Off, in)
			if hout.Action == hooks.Halt {
				return &Outcome{Halted: true, Err: hout.Err}, nil
			}
		}
	}

	return nil, nil
}

func sourceFor(op state.Operand, write bool) hooks.AccessSource {
	switch {
	case write && op.Kind == state.OperandAddress:
		return hooks.SourceWrite
	case write:
		return hooks.SourceWriteVia
	case op.Kind == state.OperandAddress:
		return hooks.SourceRead
	default:
		return hooks.SourceReadVia
	}
}

// recoverInvalidAccess fans out InvalidMemoryAccess hooks after a failed
// operand access, honoring Value (substitute bytes, reads only), Skip
// (treat as a no-op success), and Halt. When no hook
// supplies an outcome but one signaled state_changed (it mapped or
// repermissioned something), the caller retries the access once.
func (ip *Interpreter) recoverInvalidAccess(op state.Operand, cause error, source hooks.AccessSource) ([]byte, *Outcome, bool, error) {
	stateChanged := false
	for _, h := range ip.Hooks.All() {
		out := h.InvalidMemoryAccess(op.Value, op.Size, source, cause)
		if out.StateChanged {
			stateChanged = true
		}
		switch out.Action {
		case hooks.Value:
			return out.Bytes, nil, false, nil
		case hooks.Skip:
			return make([]byte, op.Size), nil, false, nil
		case hooks.Halt:
			return nil, &Outcome{Halted: true, Err: out.Err}, false, nil
		}
	}
	if stateChanged {
		return nil, nil, true, nil
	}
	return nil, nil, false, cause
}

func haltOrValue(out hooks.Outcome) (bool, *Outcome) {
	switch out.Action {
	case hooks.Halt:
		return true, &Outcome{Halted: true, Err: out.Err}
	case hooks.Value:
		return true, nil
	}
	return false, nil
}

func (ip *Interpreter) execCopy(op step.Op) (Outcome, error) {
	in, halt, err := ip.readOperand(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	val := bvFromBytes(in, ip.State.Order, false)
	out := bvToBytes(val, op.Out.Size, ip.State.Order)
	if halt, err := ip.writeOperand(*op.Out, out); err != nil {
		return Outcome{}, err
	} else if halt != nil {
		return *halt, nil
	}
	return nextOutcome, nil
}

func (ip *Interpreter) ptrValue(op state.Operand) (uint64, *Outcome, error) {
	if op.Size != 1 && op.Size != 2 && op.Size != 4 && op.Size != 8 {
		return 0, nil, &UnsupportedAddressSizeError{Size: op.Size}
	}
	b, halt, err := ip.readOperand(op)
	if err != nil || halt != nil {
		return 0, halt, err
	}
	return bvFromBytes(b, ip.State.Order, false).Uint64(), nil, nil
}

func (ip *Interpreter) execLoad(op step.Op) (Outcome, error) {
	ptr, halt, err := ip.ptrValue(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	addrVal := ip.memSpace.Mask(ptr * uint64(ip.memSpace.WordSize()))
	src := state.AddressOperand(addrVal, op.Out.Size)
	bytes, halt, err := ip.readOperand(src)
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	if halt, err := ip.writeOperand(*op.Out, bytes); err != nil {
		return Outcome{}, err
	} else if halt != nil {
		return *halt, nil
	}
	return nextOutcome, nil
}

func (ip *Interpreter) execStore(op step.Op) (Outcome, error) {
	ptr, halt, err := ip.ptrValue(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	val, halt, err := ip.readOperand(op.In[1])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	addrVal := ip.memSpace.Mask(ptr * uint64(ip.memSpace.WordSize()))
	dst := state.AddressOperand(addrVal, op.In[1].Size)
	if halt, err := ip.writeOperand(dst, val); err != nil {
		return Outcome{}, err
	} else if halt != nil {
		return *halt, nil
	}
	return nextOutcome, nil
}

func resolveBranchDest(in state.Operand) (step.BranchRequest, error) {
	switch in.Kind {
	case state.OperandConstant:
		return step.BranchRequest{Action: step.Local, Delta: int64(in.Value)}, nil
	case state.OperandAddress:
		return step.BranchRequest{Action: step.Global, Target: in.Value}, nil
	default:
		return step.BranchRequest{}, &UnsupportedBranchDestinationError{}
	}
}

func (ip *Interpreter) execBranch(op step.Op) (Outcome, error) {
	if op.HasLocal {
		return Outcome{Branch: step.BranchRequest{Action: step.Local, Delta: op.LocalDelta}}, nil
	}
	if op.HasGlobal {
		return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: op.GlobalTarget}}, nil
	}
	req, err := resolveBranchDest(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Branch: req}, nil
}

func (ip *Interpreter) execCBranch(op step.Op) (Outcome, error) {
	cond, halt, err := ip.readOperand(op.In[1])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	truthy := truthyByte(cond)

	var targetForHook uint64
	switch {
	case op.HasGlobal:
		targetForHook = op.GlobalTarget
	case op.In[0].Kind == state.OperandAddress:
		targetForHook = op.In[0].Value
	}

	flipped := false
	for _, h := range ip.Hooks.All() {
		out := h.CBranch(targetForHook, truthy)
		switch out.Action {
		case hooks.Flip:
			flipped = true
		case hooks.Halt:
			return Outcome{Halted: true, Err: out.Err}, nil
		}
	}
	if flipped {
		truthy = !truthy
		if halt, err := ip.writeOperand(op.In[1], boolBytes(truthy, op.In[1].Size)); err != nil {
			return Outcome{}, err
		} else if halt != nil {
			return *halt, nil
		}
	}

	if !truthy {
		return nextOutcome, nil
	}
	if op.HasLocal {
		return Outcome{Branch: step.BranchRequest{Action: step.Local, Delta: op.LocalDelta}}, nil
	}
	if op.HasGlobal {
		return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: op.GlobalTarget}}, nil
	}
	req, err := resolveBranchDest(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Branch: req}, nil
}

// fireCall fans out Call hooks for a transfer to target. Skip treats the
// callee as already having returned: the synthetic return target is
// computed from the return-location metadata, and the calling
// convention's extra stack pop is applied.
func (ip *Interpreter) fireCall(cursor *step.State, target uint64) (Outcome, error) {
	for _, h := range ip.Hooks.All() {
		out := h.Call(target)
		switch out.Action {
		case hooks.Halt:
			return Outcome{Halted: true, Err: out.Err}, nil
		case hooks.Skip:
			return ip.skipCall(cursor)
		}
	}
	return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: target}}, nil
}

// skipCall computes where a skipped call resumes. With the return address
// in a register, the call's own micro-ops have already stored the
// fallthrough there; with a stack-relative return location, the return
// slot is read and popped along with any extra_pop bytes. A return
// location nothing has written yet falls back to the fallthrough address.
func (ip *Interpreter) skipCall(cursor *step.State) (Outcome, error) {
	loc := ip.State.ReturnLocation
	extra := int64(ip.State.ExtraPop)

	switch loc.Kind {
	case state.ReturnInRegister:
		retOp := state.RegisterOperand(loc.RegisterOff, loc.RegisterSize)
		b, halt, err := ip.readOperand(retOp)
		if err != nil {
			return Outcome{}, err
		}
		if halt != nil {
			return *halt, nil
		}
		target := bvFromBytes(b, ip.State.Order, false).Uint64()
		if target == 0 {
			target = cursor.Fallthrough()
		}
		if extra != 0 {
			if halt, err := ip.adjustSP(extra); err != nil {
				return Outcome{}, err
			} else if halt != nil {
				return *halt, nil
			}
		}
		return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: target}}, nil

	default: // ReturnOnStack
		sp, halt, err := ip.ptrValue(ip.State.SP)
		if err != nil {
			return Outcome{}, err
		}
		if halt != nil {
			return *halt, nil
		}
		slot := uint64(int64(sp) + loc.StackOffset)
		b, halt, err := ip.readOperand(state.AddressOperand(slot, loc.PointerSize))
		if err != nil {
			return Outcome{}, err
		}
		if halt != nil {
			return *halt, nil
		}
		target := bvFromBytes(b, ip.State.Order, false).Uint64()
		if target == 0 {
			target = cursor.Fallthrough()
		}
		if halt, err := ip.adjustSP(int64(loc.PointerSize) + extra); err != nil {
			return Outcome{}, err
		} else if halt != nil {
			return *halt, nil
		}
		return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: target}}, nil
	}
}

// adjustSP adds delta to the stack pointer through the normal operand
// read/write fan-out.
func (ip *Interpreter) adjustSP(delta int64) (*Outcome, error) {
	b, halt, err := ip.readOperand(ip.State.SP)
	if err != nil || halt != nil {
		return halt, err
	}
	sp := bvFromBytes(b, ip.State.Order, false).Uint64()
	out := bvToBytes(new(big.Int).SetUint64(sp+uint64(delta)), ip.State.SP.Size, ip.State.Order)
	return ip.writeOperand(ip.State.SP, out)
}

func (ip *Interpreter) execCall(cursor *step.State, op step.Op) (Outcome, error) {
	target := op.In[0].Value
	if op.In[0].Kind != state.OperandConstant && op.In[0].Kind != state.OperandAddress {
		b, halt, err := ip.readOperand(op.In[0])
		if err != nil {
			return Outcome{}, err
		}
		if halt != nil {
			return *halt, nil
		}
		target = bvFromBytes(b, ip.State.Order, false).Uint64()
	}
	return ip.fireCall(cursor, target)
}

// execIBranchOrCall handles OpIBranch/OpICall: a computed-target jump.
// OpIBranch additionally promotes itself to a call when its target equals
// the current PC, the self-jump idiom some lifters use to mark a dynamic
// call site they couldn't otherwise distinguish from a dynamic branch.
func (ip *Interpreter) execIBranchOrCall(cursor *step.State, op step.Op, forceCall bool) (Outcome, error) {
	target, halt, err := ip.ptrValue(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	if forceCall {
		return ip.fireCall(cursor, target)
	}
	pcBytes, halt, err := ip.readOperand(ip.State.PC)
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	pcVal := bvFromBytes(pcBytes, ip.State.Order, false).Uint64()
	if target == pcVal {
		return ip.fireCall(cursor, target)
	}
	return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: target}}, nil
}

func (ip *Interpreter) execReturn(op step.Op) (Outcome, error) {
	loc := ip.State.ReturnLocation
	switch loc.Kind {
	case state.ReturnInRegister:
		retOp := state.RegisterOperand(loc.RegisterOff, loc.RegisterSize)
		b, halt, err := ip.readOperand(retOp)
		if err != nil {
			return Outcome{}, err
		}
		if halt != nil {
			return *halt, nil
		}
		target := bvFromBytes(b, ip.State.Order, false).Uint64()
		return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: target}}, nil
	default: // ReturnOnStack
		sp, halt, err := ip.ptrValue(ip.State.SP)
		if err != nil {
			return Outcome{}, err
		}
		if halt != nil {
			return *halt, nil
		}
		addrVal := uint64(int64(sp) + loc.StackOffset)
		b, halt, err := ip.readOperand(state.AddressOperand(addrVal, loc.PointerSize))
		if err != nil {
			return Outcome{}, err
		}
		if halt != nil {
			return *halt, nil
		}
		target := bvFromBytes(b, ip.State.Order, false).Uint64()
		return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: target}}, nil
	}
}

func (ip *Interpreter) execIntrinsic(op step.Op) (Outcome, error) {
	in := make([][]byte, op.NumIn)
	for i := 0; i < op.NumIn; i++ {
		b, halt, err := ip.readOperand(op.In[i])
		if err != nil {
			return Outcome{}, err
		}
		if halt != nil {
			return *halt, nil
		}
		in[i] = b
	}
	result := ip.Intrinsics.Dispatch(op.IntrinsicName, ip.State, in, op.Out)
	switch result.Action {
	case intrinsics.Halt:
		return Outcome{Halted: true, Err: result.Err}, nil
	case intrinsics.Branch:
		return Outcome{Branch: step.BranchRequest{Action: step.Global, Target: result.Target}}, nil
	default:
		return nextOutcome, nil
	}
}

func (ip *Interpreter) execSubpiece(op step.Op) (Outcome, error) {
	src, halt, err := ip.readOperand(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	amtBytes, halt, err := ip.readOperand(op.In[1])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	amount := int(bvFromBytes(amtBytes, ip.State.Order, false).Uint64())

	le := make([]byte, len(src))
	copy(le, src)
	if ip.State.Order == state.BigEndian {
		reverse(le)
	}

	window := make([]byte, op.Out.Size)
	for i := 0; i < op.Out.Size; i++ {
		si := amount + i
		if si >= 0 && si < len(le) {
			window[i] = le[si]
		}
	}
	if ip.State.Order == state.BigEndian {
		reverse(window)
	}
	if halt, err := ip.writeOperand(*op.Out, window); err != nil {
		return Outcome{}, err
	} else if halt != nil {
		return *halt, nil
	}
	return nextOutcome, nil
}

func (ip *Interpreter) execPopCount(op step.Op) (Outcome, error) {
	src, halt, err := ip.readOperand(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}
	n := bvPopCount(src)
	out := bvToBytes(big.NewInt(int64(n)), op.Out.Size, ip.State.Order)
	if halt, err := ip.writeOperand(*op.Out, out); err != nil {
		return Outcome{}, err
	} else if halt != nil {
		return *halt, nil
	}
	return nextOutcome, nil
}

var signedOps = map[step.OpCode]bool{
	step.OpIntSDiv:       true,
	step.OpIntSRem:       true,
	step.OpIntSLess:      true,
	step.OpIntSLessEqual: true,
	step.OpIntSar:        true,
	step.OpIntSext:       true,
	step.OpIntSCarry:     true,
	step.OpIntSBorrow:    true,
}

func (ip *Interpreter) execArith(op step.Op) (Outcome, error) {
	signed := signedOps[op.Code]

	lhsBytes, halt, err := ip.readOperand(op.In[0])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}

	switch op.Code {
	case step.OpIntNegate, step.OpIntNot, step.OpBoolNegate, step.OpIntSext, step.OpIntZext:
		return ip.execUnary(op, lhsBytes)
	}

	rhsBytes, halt, err := ip.readOperand(op.In[1])
	if err != nil {
		return Outcome{}, err
	}
	if halt != nil {
		return *halt, nil
	}

	switch op.Code {
	case step.OpBoolAnd, step.OpBoolOr, step.OpBoolXor:
		lhs := truthyByte(lhsBytes)
		rhs := truthyByte(rhsBytes)
		var res bool
		switch op.Code {
		case step.OpBoolAnd:
			res = lhs && rhs
		case step.OpBoolOr:
			res = lhs || rhs
		default:
			res = lhs != rhs
		}
		return ip.writeResult(op, boolBytes(res, op.Out.Size))
	}

	lhs := bvFromBytes(lhsBytes, ip.State.Order, signed)
	lhsBits := op.In[0].Size * 8

	rhsSigned := signed
	if op.Code == step.OpIntShl || op.Code == step.OpIntShr || op.Code == step.OpIntSar {
		rhsSigned = false
	}
	rhs := bvFromBytes(rhsBytes, ip.State.Order, rhsSigned)
	if op.In[1].Size != op.In[0].Size {
		rhs = bvCast(rhs, lhsBits, rhsSigned)
	}

	result := new(big.Int)
	isComparison := false
	var cmpResult bool

	switch op.Code {
	case step.OpIntAdd:
		result.Add(lhs, rhs)
	case step.OpIntSub:
		result.Sub(lhs, rhs)
	case step.OpIntMul:
		result.Mul(lhs, rhs)
	case step.OpIntDiv, step.OpIntSDiv:
		if rhs.Sign() == 0 {
			return Outcome{}, &DivisionByZeroError{}
		}
		result.Quo(lhs, rhs)
	case step.OpIntRem, step.OpIntSRem:
		if rhs.Sign() == 0 {
			return Outcome{}, &DivisionByZeroError{}
		}
		result.Rem(lhs, rhs)
	case step.OpIntAnd:
		result.And(lhs, rhs)
	case step.OpIntOr:
		result.Or(lhs, rhs)
	case step.OpIntXor:
		result.Xor(lhs, rhs)
	case step.OpIntShl:
		result.Lsh(lhs, uint(rhs.Uint64()))
	case step.OpIntShr:
		unsigned := bvFromBytes(lhsBytes, ip.State.Order, false)
		result.Rsh(unsigned, uint(rhs.Uint64()))
	case step.OpIntSar:
		result.Rsh(lhs, uint(rhs.Uint64()))
	case step.OpIntEqual:
		isComparison, cmpResult = true, lhs.Cmp(rhs) == 0
	case step.OpIntNotEqual:
		isComparison, cmpResult = true, lhs.Cmp(rhs) != 0
	case step.OpIntLess, step.OpIntSLess:
		isComparison, cmpResult = true, lhs.Cmp(rhs) < 0
	case step.OpIntLessEqual, step.OpIntSLessEqual:
		isComparison, cmpResult = true, lhs.Cmp(rhs) <= 0
	case step.OpIntCarry:
		limit := new(big.Int).Lsh(big.NewInt(1), uint(lhsBits))
		isComparison, cmpResult = true, new(big.Int).Add(lhs, rhs).Cmp(limit) >= 0
	case step.OpIntSCarry:
		isComparison, cmpResult = true, signedOverflows(new(big.Int).Add(lhs, rhs), lhsBits)
	case step.OpIntSBorrow:
		isComparison, cmpResult = true, signedOverflows(new(big.Int).Sub(lhs, rhs), lhsBits)
	default:
		return Outcome{}, errors.Errorf("interp: unhandled opcode %d", op.Code)
	}

	var out []byte
	if isComparison {
		out = boolBytes(cmpResult, op.Out.Size)
	} else {
		out = bvToBytes(result, op.Out.Size, ip.State.Order)
	}
	if halt, err := ip.writeOperand(*op.Out, out); err != nil {
		return Outcome{}, err
	} else if halt != nil {
		return *halt, nil
	}
	return nextOutcome, nil
}

func (ip *Interpreter) execUnary(op step.Op, srcBytes []byte) (Outcome, error) {
	var out []byte
	switch op.Code {
	case step.OpIntNegate:
		v := bvFromBytes(srcBytes, ip.State.Order, true)
		out = bvToBytes(new(big.Int).Neg(v), op.Out.Size, ip.State.Order)
	case step.OpIntNot:
		v := bvFromBytes(srcBytes, ip.State.Order, false)
		mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(op.In[0].Size)*8), big.NewInt(1))
		out = bvToBytes(new(big.Int).Xor(v, mask), op.Out.Size, ip.State.Order)
	case step.OpBoolNegate:
		out = boolBytes(!truthyByte(srcBytes), op.Out.Size)
	case step.OpIntSext:
		v := bvFromBytes(srcBytes, ip.State.Order, true)
		out = bvToBytes(v, op.Out.Size, ip.State.Order)
	case step.OpIntZext:
		v := bvFromBytes(srcBytes, ip.State.Order, false)
		out = bvToBytes(v, op.Out.Size, ip.State.Order)
	}
	if halt, err := ip.writeOperand(*op.Out, out); err != nil {
		return Outcome{}, err
	} else if halt != nil {
		return *halt, nil
	}
	return nextOutcome, nil
}

func truthyByte(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return true
		}
	}
	return false
}

func boolBytes(v bool, size int) []byte {
	out := make([]byte, size)
	if v {
		out[0] = 1
	}
	return out
}

package codec

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbehnke/turbocodec/pkg/logger"
	"github.com/dbehnke/turbocodec/pkg/turbo"
)

// maxCachedInterleavers bounds the per-length interleaver cache. Lengths
// beyond it are built per call.
const maxCachedInterleavers = 64

// Config is fixed for the lifetime of a Codec.
type Config struct {
	ConstraintLength int
	Iterations       int
	Generators       []uint32
	Feedback         uint32
	Seed             uint64
	Interleaver      string
	// Workers bounds batch parallelism; 0 means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns K=3, 8 iterations, generators 7/5, feedback 7,
// seed 1346 and the mt19937 interleaver.
func DefaultConfig() Config {
	return Config{
		ConstraintLength: turbo.DefaultConstraintLength,
		Iterations:       turbo.DefaultIterations,
		Generators:       append([]uint32(nil), turbo.DefaultGenerators...),
		Feedback:         turbo.DefaultFeedback,
		Seed:             turbo.DefaultSeed,
		Interleaver:      string(turbo.DefaultAlgorithm),
	}
}

// Stats is a snapshot of codec counters.
type Stats struct {
	EncodeCalls      uint64 `json:"encodeCalls"`
	DecodeCalls      uint64 `json:"decodeCalls"`
	Errors           uint64 `json:"errors"`
	MalformedPackets uint64 `json:"malformedPackets"`
	BitsEncoded      uint64 `json:"bitsEncoded"`
	BitsDecoded      uint64 `json:"bitsDecoded"`
	CorrectedBits    uint64 `json:"correctedBits"`
}

type counters struct {
	encodeCalls      atomic.Uint64
	decodeCalls      atomic.Uint64
	errors           atomic.Uint64
	malformedPackets atomic.Uint64
	bitsEncoded      atomic.Uint64
	bitsDecoded      atomic.Uint64
	correctedBits    atomic.Uint64
}

// Codec is the byte-level turbo codec. The trellis, decoder and cached
// interleavers are read-only after construction, so a Codec may be used
// from many goroutines at once.
type Codec struct {
	cfg       Config
	algorithm turbo.Algorithm
	trellis   *turbo.Trellis
	decoder   *turbo.Decoder
	mapper    turbo.LLRMapper
	logger    *logger.Logger
	metrics   *Metrics

	interleavers sync.Map // int -> *turbo.Interleaver
	cached       atomic.Int32

	counters counters
}

// Option customises a Codec.
type Option func(*Codec)

func WithLogger(log *logger.Logger) Option {
	return func(c *Codec) {
		if log != nil {
			c.logger = log.WithComponent("codec")
		}
	}
}

// WithLLRMapper sets how received hard bits become channel LLRs.
func WithLLRMapper(m turbo.LLRMapper) Option {
	return func(c *Codec) {
		if m != nil {
			c.mapper = m
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Codec) { c.metrics = m }
}

// New validates cfg and builds the shared trellis and decoder.
func New(cfg Config, opts ...Option) (*Codec, error) {
	algorithm, err := turbo.ParseAlgorithm(cfg.Interleaver)
	if err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, &turbo.ConfigError{Field: "workers", Reason: fmt.Sprintf("cannot be negative, got %d", cfg.Workers)}
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	trellis, err := turbo.NewTrellis(cfg.ConstraintLength, cfg.Generators, cfg.Feedback)
	if err != nil {
		return nil, err
	}
	decoder, err := turbo.NewDecoder(trellis, cfg.Iterations)
	if err != nil {
		return nil, err
	}

	cfg.Generators = append([]uint32(nil), cfg.Generators...)
	cfg.Interleaver = string(algorithm)
	c := &Codec{
		cfg:       cfg,
		algorithm: algorithm,
		trellis:   trellis,
		decoder:   decoder,
		mapper:    turbo.UnitReliability{},
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Seeds that the generator cannot take must fail here, not on first use.
	if _, err := turbo.NewInterleaver(1, cfg.Seed, algorithm); err != nil {
		return nil, err
	}

	return c, nil
}

// Config returns the effective configuration.
func (c *Codec) Config() Config {
	cfg := c.cfg
	cfg.Generators = append([]uint32(nil), c.cfg.Generators...)
	return cfg
}

// Interleaver returns the permutation for an n-bit message.
func (c *Codec) Interleaver(n int) (*turbo.Interleaver, error) {
	if v, ok := c.interleavers.Load(n); ok {
		return v.(*turbo.Interleaver), nil
	}

	il, err := turbo.NewInterleaver(n, c.cfg.Seed, c.algorithm)
	if err != nil {
		return nil, err
	}
	if !c.reserveCacheSlot() {
		return il, nil
	}
	if actual, loaded := c.interleavers.LoadOrStore(n, il); loaded {
		c.cached.Add(-1)
		return actual.(*turbo.Interleaver), nil
	}
	return il, nil
}

// reserveCacheSlot claims one of the maxCachedInterleavers slots.
func (c *Codec) reserveCacheSlot() bool {
	for {
		cur := c.cached.Load()
		if cur >= maxCachedInterleavers {
			return false
		}
		if c.cached.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// EncodeBits turbo-encodes a bit sequence.
func (c *Codec) EncodeBits(bits []uint8) (turbo.Streams, error) {
	if len(bits) == 0 {
		return turbo.Encode(nil, c.trellis, c.trellis, nil)
	}
	il, err := c.Interleaver(len(bits))
	if err != nil {
		return turbo.Streams{}, err
	}
	return turbo.Encode(bits, c.trellis, c.trellis, il)
}

// DecodeBits decodes received hard-bit streams through the LLR mapper.
func (c *Codec) DecodeBits(received turbo.Streams) ([]uint8, error) {
	return c.DecodeLLR(
		c.mapper.Map(received.Systematic),
		c.mapper.Map(received.Parity1),
		c.mapper.Map(received.Parity2),
	)
}

// DecodeLLR decodes soft channel values (LLR = ln P(0)/P(1)).
func (c *Codec) DecodeLLR(sys, parity1, parity2 []float64) ([]uint8, error) {
	if len(sys) == 0 {
		return c.decoder.Decode(sys, parity1, parity2, nil)
	}
	il, err := c.Interleaver(len(sys))
	if err != nil {
		return nil, err
	}
	bits, err := c.decoder.Decode(sys, parity1, parity2, il)
	if err != nil {
		return nil, err
	}

	// Erasures (LLR 0) carry no received bit, so they never count.
	corrected := 0
	for i, b := range bits {
		if sys[i] != 0 && (sys[i] < 0) != (b == 1) {
			corrected++
		}
	}
	c.counters.correctedBits.Add(uint64(corrected))
	c.metrics.corrected(corrected)

	return bits, nil
}

// Encode turns data into a framed rate-1/3 packet.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	start := time.Now()
	c.counters.encodeCalls.Add(1)

	bits := BytesToBits(data)
	streams, err := c.EncodeBits(bits)
	if err == nil {
		var packet []byte
		packet, err = MarshalPacket(streams)
		if err == nil {
			c.counters.bitsEncoded.Add(uint64(len(bits)))
			c.metrics.observe(OpEncode, ResultOK, len(bits), time.Since(start))
			c.logger.Debug("Encoded message",
				logger.Int("bytes", len(data)),
				logger.Int("packet_bytes", len(packet)),
				logger.Duration("elapsed", time.Since(start)))
			return packet, nil
		}
	}

	c.counters.errors.Add(1)
	c.metrics.observe(OpEncode, ResultError, 0, time.Since(start))
	return nil, fmt.Errorf("encode: %w", err)
}

// Decode recovers the message bytes from a packet. Corruption beyond the
// code's capability yields wrong bytes, not an error.
func (c *Codec) Decode(packet []byte) ([]byte, error) {
	start := time.Now()
	c.counters.decodeCalls.Add(1)

	received, err := UnmarshalPacket(packet)
	if err != nil {
		c.failDecode(err, start)
		return nil, fmt.Errorf("decode: %w", err)
	}

	bits, err := c.DecodeBits(received)
	if err != nil {
		c.failDecode(err, start)
		return nil, fmt.Errorf("decode: %w", err)
	}

	c.finishDecode(len(bits), start)
	return PackBits(bits), nil
}

// DecodeSoft decodes soft channel values for an n-bit message supplied by
// a receiver that already has LLRs.
func (c *Codec) DecodeSoft(sys, parity1, parity2 []float64) ([]byte, error) {
	start := time.Now()
	c.counters.decodeCalls.Add(1)

	if err := checkFinite(sys, parity1, parity2); err != nil {
		c.failDecode(err, start)
		return nil, fmt.Errorf("decode soft: %w", err)
	}

	bits, err := c.DecodeLLR(sys, parity1, parity2)
	if err != nil {
		c.failDecode(err, start)
		return nil, fmt.Errorf("decode soft: %w", err)
	}

	c.finishDecode(len(bits), start)
	return PackBits(bits), nil
}

// checkFinite rejects NaN and infinite channel values, which the log-MAP
// recursions cannot absorb.
func checkFinite(streams ...[]float64) error {
	names := [...]string{"systematic", "parity1", "parity2"}
	for s, llr := range streams {
		for i, v := range llr {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s LLR %d is not finite: %v", names[s], i, v)
			}
		}
	}
	return nil
}

func (c *Codec) finishDecode(bits int, start time.Time) {
	c.counters.bitsDecoded.Add(uint64(bits))
	c.metrics.observe(OpDecode, ResultOK, bits, time.Since(start))
	c.logger.Debug("Decoded message",
		logger.Int("bits", bits),
		logger.Int("iterations", c.decoder.Iterations()),
		logger.Duration("elapsed", time.Since(start)))
}

func (c *Codec) failDecode(err error, start time.Time) {
	var malformed *MalformedPacketError
	if errors.As(err, &malformed) {
		c.counters.malformedPackets.Add(1)
		c.metrics.observe(OpDecode, ResultMalformed, 0, time.Since(start))
		c.logger.WithError(err).Warn("Rejected malformed packet")
		return
	}
	c.counters.errors.Add(1)
	c.metrics.observe(OpDecode, ResultError, 0, time.Since(start))
}

// Stats returns a snapshot of the codec counters.
func (c *Codec) Stats() Stats {
	return Stats{
		EncodeCalls:      c.counters.encodeCalls.Load(),
		DecodeCalls:      c.counters.decodeCalls.Load(),
		Errors:           c.counters.errors.Load(),
		MalformedPackets: c.counters.malformedPackets.Load(),
		BitsEncoded:      c.counters.bitsEncoded.Load(),
		BitsDecoded:      c.counters.bitsDecoded.Load(),
		CorrectedBits:    c.counters.correctedBits.Load(),
	}
}

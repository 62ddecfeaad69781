// Package config expresses each allocator's compile-time-flavored
// configuration as a runtime Config value plus a set of Default*
// constants, since Go has no preprocessor to bind these at compile time.
package config

import "vmem/kernel"

// Default* mirror the allocators' documented default option values.
const (
	// DefaultFactor is the growth multiplier applied on large pushes.
	DefaultFactor kernel.Size = 1

	// DefaultCommission is the number of bytes committed on first use.
	DefaultCommission kernel.Size = 64 * kernel.Kb

	// DefaultReservation is the number of bytes reserved on first use.
	DefaultReservation kernel.Size = 4 * kernel.Mb

	// DefaultGranularity is the number of bytes per slot in a granular
	// allocator.
	DefaultGranularity kernel.Size = 64

	// DefaultQuantity is the slot count in a granular allocator.
	DefaultQuantity = 4096
)

// Config holds the per-allocator configuration. The zero Config is not
// itself usable; call Default() or New(opts...), or FillDefaults on it,
// to fill in the Default* values for any field left at zero
// ("zero-is-initialization").
type Config struct {
	// Reservation is the address-space claim made on first use.
	Reservation kernel.Size

	// Commission is the bytes committed on first use.
	Commission kernel.Size

	// Factor is the growth multiplier applied on large pushes (linear
	// allocator only). Must be >= 1.
	Factor kernel.Size

	// Granularity is the bytes-per-slot (granular allocator only).
	Granularity kernel.Size

	// Quantity is the slot count (granular allocator only).
	Quantity int

	// DisableAutoInitialize turns off ENABLE_AUTOMATIC_INITIALIZATION.
	// The zero value (false) keeps automatic initialization on, so a
	// zero-valued Config — and therefore a zero-valued allocator that
	// embeds one — behaves like the library's default build: Push/Put
	// lazily complete Initialize on first use instead of requiring a
	// prior call.
	DisableAutoInitialize bool

	// EnableDebuggingAliases, if true, makes New return the
	// debug-checked variant of an allocator (ENABLE_DEBUGGING_ALIASES).
	EnableDebuggingAliases bool
}

// Default returns a Config with every field set to its documented
// default.
func Default() Config {
	return Config{
		Reservation: DefaultReservation,
		Commission:  DefaultCommission,
		Factor:      DefaultFactor,
		Granularity: DefaultGranularity,
		Quantity:    DefaultQuantity,
	}
}

// Option mutates a Config in place; used with New to override individual
// fields without a full struct literal.
type Option func(*Config)

// New builds a Config starting from Default() and applying opts in
// order.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithReservation overrides Reservation.
func WithReservation(size kernel.Size) Option {
	return func(c *Config) { c.Reservation = size }
}

// WithCommission overrides Commission.
func WithCommission(size kernel.Size) Option {
	return func(c *Config) { c.Commission = size }
}

// WithFactor overrides Factor.
func WithFactor(factor kernel.Size) Option {
	return func(c *Config) { c.Factor = factor }
}

// WithGranularity overrides Granularity.
func WithGranularity(size kernel.Size) Option {
	return func(c *Config) { c.Granularity = size }
}

// WithQuantity overrides Quantity.
func WithQuantity(n int) Option {
	return func(c *Config) { c.Quantity = n }
}

// WithAutoInitialize overrides DisableAutoInitialize (note the inverted
// sense: pass false to disable automatic initialization).
func WithAutoInitialize(enabled bool) Option {
	return func(c *Config) { c.DisableAutoInitialize = !enabled }
}

// WithDebuggingAliases overrides EnableDebuggingAliases.
func WithDebuggingAliases(enabled bool) Option {
	return func(c *Config) { c.EnableDebuggingAliases = enabled }
}

// FillDefaults fills any zero field of c with its Default() counterpart,
// in place, implementing the "zero-is-initialization" lazy-default
// behavior every allocator applies on first use.
func (c *Config) FillDefaults() {
	def := Default()
	if c.Reservation == 0 {
		c.Reservation = def.Reservation
	}
	if c.Commission == 0 {
		c.Commission = def.Commission
	}
	if c.Factor == 0 {
		c.Factor = def.Factor
	}
	if c.Granularity == 0 {
		c.Granularity = def.Granularity
	}
	if c.Quantity == 0 {
		c.Quantity = def.Quantity
	}
}

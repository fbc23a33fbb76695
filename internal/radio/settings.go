package radio

import (
	"fmt"
	"time"
)

// Defaults for StreamSettings and SupplierSettings.
const (
	DefaultSegmentDuration     = 6 * time.Second
	DefaultMaxVisibleSegments  = 20
	DefaultDripPerTick         = 1
	DefaultRefillThreshold     = 10
	DefaultRegularCapacity     = 2
	DefaultPriorityThreshold   = 12
	DefaultTriggerDepth        = 2
	DefaultMaintenanceInterval = 100 * time.Second
	DefaultMaintenanceDelay    = 30 * time.Second
	DefaultStarvationCooldown  = 20 * time.Second
	DefaultFillerWait          = 5 * time.Second
)

// DefaultBitrates is the ladder used when none is configured.
var DefaultBitrates = []int64{128000, 64000}

// StreamSettings configures the segment window of every station.
type StreamSettings struct {
	SegmentDuration    time.Duration `yaml:"segment_duration"`
	MaxVisibleSegments int           `yaml:"max_visible_segments"`
	Bitrates           []int64       `yaml:"bitrates"`
	DripPerTick        int           `yaml:"drip_per_tick"`
	RefillThreshold    int           `yaml:"refill_threshold"`
}

// DefaultStreamSettings returns the built-in stream settings.
func DefaultStreamSettings() StreamSettings {
	return StreamSettings{
		SegmentDuration:    DefaultSegmentDuration,
		MaxVisibleSegments: DefaultMaxVisibleSegments,
		Bitrates:           append([]int64(nil), DefaultBitrates...),
		DripPerTick:        DefaultDripPerTick,
		RefillThreshold:    DefaultRefillThreshold,
	}
}

// Validate reports an error wrapping ErrConfig if s cannot drive a station.
func (s StreamSettings) Validate() error {
	if s.SegmentDuration < time.Second {
		return fmt.Errorf("%w: segment duration %s is below 1s", ErrConfig, s.SegmentDuration)
	}
	if s.MaxVisibleSegments <= 0 {
		return fmt.Errorf("%w: max visible segments must be positive, got %d", ErrConfig, s.MaxVisibleSegments)
	}
	if s.DripPerTick <= 0 {
		return fmt.Errorf("%w: drip per tick must be positive, got %d", ErrConfig, s.DripPerTick)
	}
	if s.RefillThreshold <= 0 {
		return fmt.Errorf("%w: refill threshold must be positive, got %d", ErrConfig, s.RefillThreshold)
	}
	if len(s.Bitrates) == 0 {
		return fmt.Errorf("%w: bitrate ladder is empty", ErrConfig)
	}
	seen := make(map[int64]struct{}, len(s.Bitrates))
	for _, b := range s.Bitrates {
		if b <= 0 {
			return fmt.Errorf("%w: bitrate %d is not positive", ErrConfig, b)
		}
		if _, dup := seen[b]; dup {
			return fmt.Errorf("%w: bitrate %d listed twice", ErrConfig, b)
		}
		seen[b] = struct{}{}
	}
	return nil
}

// hasBitrate reports whether b is part of the ladder.
func (s StreamSettings) hasBitrate(b int64) bool {
	for _, x := range s.Bitrates {
		if x == b {
			return true
		}
	}
	return false
}

// SupplierSettings configures the per-station playlist supplier.
type SupplierSettings struct {
	RegularCapacity     int           `yaml:"regular_capacity"`
	PriorityThreshold   int           `yaml:"priority_threshold"`
	TriggerDepth        int           `yaml:"trigger_depth"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	MaintenanceDelay    time.Duration `yaml:"maintenance_delay"`
	StarvationCooldown  time.Duration `yaml:"starvation_cooldown"`
	FillerWait          time.Duration `yaml:"filler_wait"`
}

// DefaultSupplierSettings returns the built-in supplier settings.
func DefaultSupplierSettings() SupplierSettings {
	return SupplierSettings{
		RegularCapacity:     DefaultRegularCapacity,
		PriorityThreshold:   DefaultPriorityThreshold,
		TriggerDepth:        DefaultTriggerDepth,
		MaintenanceInterval: DefaultMaintenanceInterval,
		MaintenanceDelay:    DefaultMaintenanceDelay,
		StarvationCooldown:  DefaultStarvationCooldown,
		FillerWait:          DefaultFillerWait,
	}
}

// Validate reports an error wrapping ErrConfig if s is unusable.
func (s SupplierSettings) Validate() error {
	if s.RegularCapacity <= 0 {
		return fmt.Errorf("%w: regular capacity must be positive, got %d", ErrConfig, s.RegularCapacity)
	}
	if s.MaintenanceInterval <= 0 {
		return fmt.Errorf("%w: maintenance interval must be positive", ErrConfig)
	}
	if s.StarvationCooldown < 0 || s.MaintenanceDelay < 0 || s.FillerWait < 0 {
		return fmt.Errorf("%w: negative supplier duration", ErrConfig)
	}
	return nil
}

package batch

import "github.com/rs/zerolog/log"

// Notifier receives progress after each completed source. totalSteps is fixed
// at batch start to the number of sources.
type Notifier interface {
	Report(currentStep, totalSteps int)
}

// LogNotifier reports progress to the global logger.
type LogNotifier struct{}

func (LogNotifier) Report(currentStep, totalSteps int) {
	log.Info().Int("step", currentStep).Int("total", totalSteps).Msg("source completed")
}

// NopNotifier discards progress updates.
type NopNotifier struct{}

func (NopNotifier) Report(int, int) {}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"odysseywalk/pkg/db"
	"odysseywalk/pkg/llm/gemini"
	"odysseywalk/pkg/probe"
	"odysseywalk/pkg/tour"
	"odysseywalk/pkg/tts"
)

// startupProbes checks what the walk depends on. Only storage and the tour
// are critical; without speech or answers the app still shows text.
func startupProbes(dbConn *db.DB, bundle *tour.Bundle, synth tts.Synthesizer, gc *gemini.Client) []probe.Probe {
	return []probe.Probe{
		{
			Name:     "Database",
			Critical: true,
			Check: func(ctx context.Context) error {
				return dbConn.PingContext(ctx)
			},
		},
		{
			Name:     "Tour",
			Critical: true,
			Check: func(ctx context.Context) error {
				return checkTour(bundle)
			},
		},
		{
			Name: "Speech",
			Check: func(ctx context.Context) error {
				if synth == nil {
					return errors.New("no engine configured")
				}
				return nil
			},
		},
		{
			Name:    "Gemini",
			Timeout: 15 * time.Second,
			Check:   gc.Validate,
		},
	}
}

func checkTour(b *tour.Bundle) error {
	if b == nil {
		return errors.New("no tour loaded")
	}
	if len(b.POIs) == 0 {
		return fmt.Errorf("tour %s has no stops", b.Tour.ID)
	}
	if len(b.Tour.RoutePoints) < 2 {
		return fmt.Errorf("tour %s has no route", b.Tour.ID)
	}
	return nil
}

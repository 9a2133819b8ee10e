package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/eiannone/keyboard"

	"github.com/chmdznr/ftpsync/internal/sync"
)

// listenKeys handles single-key commands until ctx is done or the user
// quits. The terminal is in raw mode meanwhile, so Ctrl-C arrives as a key.
func listenKeys(ctx context.Context, syncer *sync.Syncer, cancel context.CancelFunc) error {
	keys, err := keyboard.GetKeys(10)
	if err != nil {
		return fmt.Errorf("failed to open keyboard: %v", err)
	}
	defer keyboard.Close()

	fmt.Println("Press 's' to sync now, 'q' or Esc to quit")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-keys:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				return ev.Err
			}
			switch {
			case ev.Key == keyboard.KeyEsc, ev.Key == keyboard.KeyCtrlC, ev.Rune == 'q':
				cancel()
				return nil
			case ev.Rune == 's':
				go func() {
					if _, err := syncer.SyncNow(ctx); errors.Is(err, sync.ErrCycleRunning) {
						fmt.Println("A sync cycle is already running")
					}
				}()
			}
		}
	}
}

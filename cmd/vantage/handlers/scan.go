package handlers

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/scan"
)

// Scan sweeps the local networks and prints what it finds, without touching
// any cloud resource.
func Scan(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log := newLogger()
	timeouts := config.LoadTimeouts()
	deviceClient := newDeviceClient(timeouts, log)
	prober, ok := deviceClient.(scan.Prober)
	if !ok {
		return fmt.Errorf("device client cannot probe")
	}
	scanner := newScanner(prober, &cfg.Devices, timeouts, log)

	fmt.Println("Sweeping local networks for cameras...")
	cameras, err := scanner.Run(ctx, func(p scan.Progress) {
		fmt.Printf("\r  %d/%d probed, %d found", p.Done, p.Total, p.Found)
	})
	fmt.Println()
	if err != nil {
		return err
	}

	if len(cameras) == 0 {
		fmt.Println("No cameras found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tMODEL\tSERIAL\tAUTH")
	for _, cam := range cameras {
		auth := "open"
		if cam.AuthRequired {
			auth = "required"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cam.Address, cam.Model, cam.Serial, auth)
	}
	return w.Flush()
}

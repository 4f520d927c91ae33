package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/sportsedge/internal/calibration"
	"github.com/sawpanic/sportsedge/internal/config"
	"github.com/sawpanic/sportsedge/internal/decision"
	"github.com/sawpanic/sportsedge/internal/models"
	"github.com/sawpanic/sportsedge/internal/storage/postgres"
)

// runHealth queries a running instance's /stats endpoint and prints it.
func runHealth(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	var stats map[string]interface{}
	if err := getJSON(addr+"/stats", &stats); err != nil {
		return fmt.Errorf("instance unreachable: %w", err)
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// runGatesDump prints the most recent gate rejections from a running instance.
func runGatesDump(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	n, _ := cmd.Flags().GetInt("n")

	var records []decision.RejectionRecord
	if err := getJSON(addr+"/gates/recent", &records); err != nil {
		return fmt.Errorf("instance unreachable: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("no gate rejections recorded")
		return nil
	}
	if n < len(records) {
		records = records[:n]
	}

	for _, r := range records {
		fmt.Printf("%s  %-32s  fixture=%s  %s\n", r.At.Format(time.RFC3339), r.Reason, r.FixtureID, r.Detail)
	}
	return nil
}

// runCalibrate performs one training pass against the configured database and
// exits; promoted coefficients are picked up on the next engine start.
func runCalibrate(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseDSN == "" {
		return fmt.Errorf("calibrate requires database_dsn")
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.DSN = cfg.DatabaseDSN
	db, err := postgres.NewManager(pgCfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	sports := make([]models.Sport, 0, len(cfg.Sports))
	for _, s := range cfg.Sports {
		sports = append(sports, models.Sport(s))
	}

	calibrator := models.NewCalibrator()
	warmStartCalibrator(context.Background(), db, calibrator, cfg.Sports)

	trainer := calibration.New(calibration.DefaultConfig(), db.Positions, db.Calibrations, calibrator, sports)
	trainer.RunOnce(context.Background())
	return nil
}

func getJSON(url string, out interface{}) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

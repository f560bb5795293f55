package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	civicscreen "github.com/anatolykoptev/go-civicscreen"
	"github.com/anatolykoptev/go-civicscreen/dataset"
)

func runDatasetCount(cfg *config, _ []string) error {
	if cfg.DatasetSQLite == "" {
		return errors.New("CIVIC_DATASET_SQLITE is not set")
	}

	store, err := dataset.OpenSQLite(cfg.DatasetSQLite)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	byStatus, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("records: %d\n", total)
	statuses := make([]civicscreen.Status, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, s := range statuses {
		fmt.Printf("  %-9s %d\n", s, byStatus[s])
	}
	return nil
}

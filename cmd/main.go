package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	featurestore "github.com/steffengr/feature-store-api"
)

// Small inspector for feature groups: prints the schema, the commit
// timeline and optionally the first rows of a feature group.
func main() {
	var (
		storeName = flag.String("featurestore", os.Getenv("FS_PROJECT"), "feature store name")
		fgName    = flag.String("name", "", "feature group name")
		version   = flag.Int("version", 1, "feature group version")
		showRows  = flag.Int("show", 0, "print the first n rows")
		online    = flag.Bool("online", false, "read rows from the online store")
	)
	flag.Parse()

	if *storeName == "" || *fgName == "" {
		flag.Usage()
		os.Exit(2)
	}

	conn, err := featurestore.Connect()
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			fmt.Printf("Failed to close connection: %v\n", err)
		}
	}()
	defer func() {
		if err := conn.Logger().Sync(); err != nil {
			fmt.Printf("Failed to sync logger: %v\n", err)
		}
	}()

	ctx := context.Background()

	fs, err := conn.GetFeatureStore(ctx, *storeName)
	if err != nil {
		conn.Logger().Fatal("Failed to get feature store", zap.Error(err))
	}

	fg, err := fs.GetFeatureGroup(ctx, *fgName, *version)
	if err != nil {
		conn.Logger().Fatal("Failed to get feature group", zap.Error(err))
	}

	fmt.Printf("%s (version %d, id %d)\n", fg.Name, fg.Version, fg.ID)
	if fg.Description != "" {
		fmt.Println(fg.Description)
	}

	schema := tablewriter.NewWriter(os.Stdout)
	schema.SetHeader([]string{"Feature", "Type", "Primary", "Partition"})
	for _, feat := range fg.Features {
		schema.Append([]string{
			feat.Name,
			feat.Type,
			strconv.FormatBool(feat.Primary),
			strconv.FormatBool(feat.Partition),
		})
	}
	schema.Render()

	commits, err := fg.CommitDetails(ctx, 10)
	if err != nil {
		conn.Logger().Fatal("Failed to get commit details", zap.Error(err))
	}
	if len(commits) > 0 {
		timeline := tablewriter.NewWriter(os.Stdout)
		timeline.SetHeader([]string{"Commit", "Committed on", "Inserted", "Updated", "Deleted"})
		for _, c := range commits {
			timeline.Append([]string{
				strconv.FormatInt(c.CommitID, 10),
				c.CommitDateString,
				strconv.FormatInt(c.RowsInserted, 10),
				strconv.FormatInt(c.RowsUpdated, 10),
				strconv.FormatInt(c.RowsDeleted, 10),
			})
		}
		timeline.Render()
	}

	if *showRows > 0 {
		df, err := fg.Show(ctx, *showRows, *online)
		if err != nil {
			conn.Logger().Fatal("Failed to read feature group", zap.Error(err))
		}
		fmt.Print(df.String())
	}
}

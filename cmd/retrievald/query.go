package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/retrievald/internal/dataset"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/retrieval"
)

var (
	queryTenantID    string
	queryAccountID   string
	queryRole        string
	queryTopK        int
	queryThreshold   float64
	queryFilterJSON  string
	queryOutputJSON  bool
	historyListLimit int
)

var queryCmd = &cobra.Command{
	Use:   "query <dataset-id> <query text>",
	Short: "Run a retrieval query against a dataset",
	Long: `Run a hybrid retrieval query against a dataset and print the ranked
results.

The metadata filter is a JSON object with an optional logical operator
and a flat condition list:

  retrievald query <dataset-id> "refund policy" \
    --filter '{"logical_operator":"and","conditions":[{"name":"category","comparison_operator":"is","value":"hr"}]}'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runQuery,
}

var historyCmd = &cobra.Command{
	Use:   "history <dataset-id>",
	Short: "List recent queries against a dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	queryCmd.Flags().StringVar(&queryTenantID, "tenant", "local", "tenant id of the caller")
	queryCmd.Flags().StringVar(&queryAccountID, "account", "local", "account id of the caller")
	queryCmd.Flags().StringVar(&queryRole, "role", string(dataset.RoleOwner), "caller role (owner, admin, editor, normal, dataset_operator)")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", retrieval.DefaultTopK, "maximum number of results")
	queryCmd.Flags().Float64Var(&queryThreshold, "score-threshold", retrieval.DefaultScoreThreshold, "strict lower score bound")
	queryCmd.Flags().StringVar(&queryFilterJSON, "filter", "", "metadata condition as JSON")
	queryCmd.Flags().BoolVar(&queryOutputJSON, "json", false, "print raw JSON results")

	historyCmd.Flags().IntVar(&historyListLimit, "limit", 20, "maximum history rows")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Every invocation gets a request id so log lines from one query can
	// be correlated.
	ctx := logging.WithRequestID(cmd.Context(), uuid.NewString())

	var condition *dataset.MetadataCondition
	if queryFilterJSON != "" {
		condition = &dataset.MetadataCondition{}
		if err := json.Unmarshal([]byte(queryFilterJSON), condition); err != nil {
			return fmt.Errorf("parsing --filter: %w", err)
		}
	}

	results, err := a.service.Retrieve(ctx, retrieval.RetrieveRequest{
		DatasetID: args[0],
		Query:     strings.Join(args[1:], " "),
		Account: dataset.Account{
			ID:       queryAccountID,
			TenantID: queryTenantID,
			Role:     dataset.Role(queryRole),
		},
		Setting: retrieval.RetrievalSetting{
			TopK:           queryTopK,
			ScoreThreshold: queryThreshold,
		},
		MetadataCondition: condition,
	})
	if err != nil {
		return err
	}

	if queryOutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%d. %s (score %.4f)\n", r.Metadata.Position, r.Title, r.Score)
		fmt.Printf("   segment %s, document %s\n", r.Metadata.SegmentID, r.Metadata.DocumentID)
		for _, line := range strings.Split(strings.TrimSpace(r.Content), "\n") {
			fmt.Printf("   | %s\n", line)
		}
		for _, ch := range r.Metadata.ChildChunks {
			fmt.Printf("   - child %s (score %.4f)\n", ch.ID, ch.Score)
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	queries, err := a.store.ListQueries(cmd.Context(), args[0], historyListLimit)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		fmt.Println("No queries recorded.")
		return nil
	}
	for _, q := range queries {
		fmt.Printf("%s  [%s]  %s\n", q.CreatedAt.Format("2006-01-02 15:04:05"), q.Source, q.Content)
	}
	return nil
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/pierrec/lz4/v4"
	"github.com/spf13/cobra"

	"github.com/getsentry/calltree/internal/aggregate"
	"github.com/getsentry/calltree/internal/calltree"
	"github.com/getsentry/calltree/internal/storageutil"
)

var readConfig = struct {
	timeout time.Duration
	retries int
	tree    bool
}{}

var readCmd = &cobra.Command{
	Use:   "read <path|url>...",
	Short: "decode call trees and print their call counts and cumulative times",
	Long:  ``,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRead,
}

func init() {
	readCmd.Flags().DurationVar(
		&readConfig.timeout, "timeout", 10*time.Second, "timeout of HTTP fetches")
	readCmd.Flags().IntVar(
		&readConfig.retries, "retries", 0, "number of retries of failed HTTP fetches")
	readCmd.Flags().BoolVar(
		&readConfig.tree, "tree", false, "also print the decoded tree")
}

func runRead(cmd *cobra.Command, args []string) error {
	client := newHTTPClient(readConfig.timeout, readConfig.retries)
	counts := map[string]int{}
	times := map[string]int64{}
	for _, source := range args {
		t, err := loadTree(cmd.Context(), client, source)
		if err != nil {
			return fmt.Errorf("reading %s: %w", source, err)
		}
		if readConfig.tree {
			if _, err := t.WriteTo(cmd.OutOrStdout()); err != nil {
				return err
			}
		}
		counts = aggregate.MergeCounts(counts, aggregate.CallCount(t))
		times = aggregate.MergeTimes(times, aggregate.CumulativeTime(t))
	}
	return printAggregates(cmd.OutOrStdout(), counts, times)
}

func newHTTPClient(timeout time.Duration, retries int) *httpclient.Client {
	opts := []httpclient.Option{
		httpclient.WithHTTPTimeout(timeout),
		httpclient.WithRetryCount(retries),
	}
	if retries > 0 {
		backoff := heimdall.NewConstantBackoff(200*time.Millisecond, 100*time.Millisecond)
		opts = append(opts, httpclient.WithRetrier(heimdall.NewRetrier(backoff)))
	}
	return httpclient.NewClient(opts...)
}

// loadTree reads a tree from a local file or an http(s) URL. Sources ending
// with ".lz4" are decompressed.
func loadTree(ctx context.Context, client *httpclient.Client, source string) (*calltree.Tree, error) {
	var r io.Reader
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if ctx == nil {
			ctx = context.Background()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		res, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code %d", res.StatusCode)
		}
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	if strings.HasSuffix(source, storageutil.CompressedExtension) {
		r = lz4.NewReader(r)
	}
	return calltree.ReadTree(r)
}

func printAggregates(w io.Writer, counts map[string]int, times map[string]int64) error {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if times[names[i]] != times[names[j]] {
			return times[names[i]] > times[names[j]]
		}
		return names[i] < names[j]
	})

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "FUNCTION\tCALLS\tCUMULATIVE TIME")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", name, counts[name], time.Duration(times[name]))
	}
	return tw.Flush()
}

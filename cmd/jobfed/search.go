package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/usecase/progressive"
	searchuc "github.com/kailas-cloud/jobfed/internal/usecase/search"
	"github.com/kailas-cloud/jobfed/internal/usecase/selector"
)

type searchFlags struct {
	requester   string
	keywords    []string
	location    string
	remote      bool
	jobTypes    []string
	limit       int
	maxSources  int
	cacheMode   string
	progressive bool
}

var searchOpts searchFlags

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run one search and print the result as JSON",
	Example: `  jobfed search --requester u1 --keywords golang,backend --location Berlin
  jobfed search --requester u1 --keywords golang --remote --progressive`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		req, err := searchOpts.request()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		if searchOpts.progressive {
			// NDJSON: one line per wave, the last one complete
			a.search.SearchProgressive(cmd.Context(), req, func(p progressive.Progress) {
				_ = enc.Encode(p)
			})
			return nil
		}

		enc.SetIndent("", "  ")
		res := a.search.Search(cmd.Context(), req)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		if res.Origin == searchuc.OriginError {
			return fmt.Errorf("search failed: %s", res.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	f := searchCmd.Flags()
	f.StringVarP(&searchOpts.requester, "requester", "r", "cli", "requester id, scopes the personal cache tier")
	f.StringSliceVarP(&searchOpts.keywords, "keywords", "k", nil, "comma separated search keywords")
	f.StringVarP(&searchOpts.location, "location", "l", "", "location filter")
	f.BoolVar(&searchOpts.remote, "remote", false, "remote positions only")
	f.StringSliceVar(&searchOpts.jobTypes, "job-types", nil, "job types, e.g. contract,freelance")
	f.IntVar(&searchOpts.limit, "limit", 0, "per-source result limit (0 = source default)")
	f.IntVar(&searchOpts.maxSources, "max-sources", 0, "cap on the number of primary sources (0 = no cap)")
	f.StringVar(&searchOpts.cacheMode, "cache", "", "cache mode: default, refresh or bypass")
	f.BoolVarP(&searchOpts.progressive, "progressive", "p", false, "print one NDJSON line per wave")
	_ = searchCmd.MarkFlagRequired("keywords")
}

func (f searchFlags) request() (searchuc.Request, error) {
	q, err := query.New(f.keywords, f.location, f.remote, f.jobTypes, 1, f.limit)
	if err != nil {
		return searchuc.Request{}, err
	}
	mode, err := searchuc.ParseCacheMode(f.cacheMode)
	if err != nil {
		return searchuc.Request{}, err
	}
	return searchuc.Request{
		RequesterID: f.requester,
		Query:       q,
		Prefs:       selector.PreferencesFor(q, f.maxSources),
		Cache:       mode,
	}, nil
}

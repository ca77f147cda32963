package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/san-kum/mbsim/internal/analysis"
	"github.com/san-kum/mbsim/internal/sim"
	"github.com/san-kum/mbsim/internal/store"
)

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := store.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tDURATION\tDT\tINTEG\tSTEPS\tDRIFT\tPROJ FAILS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%d\t%.2e\t%d\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			run.Steps,
			run.EnergyDrift,
			run.ProjectionFailures,
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*store.RunMetadata, *store.Trajectory, error) {
	st := store.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	tr, err := st.LoadTrajectory(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(tr.Times) == 0 {
		return nil, nil, errors.Errorf("run %s has no samples", runID)
	}
	return meta, tr, nil
}

func column(rows [][]float64, i int) []float64 {
	out := make([]float64, len(rows))
	for r, row := range rows {
		out[r] = row[i]
	}
	return out
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, tr, err := loadRun(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", len(tr.Times))

	n := min(len(tr.Q[0]), 6)
	for i := 0; i < n; i++ {
		graph := asciigraph.Plot(column(tr.Q, i),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("q%d vs time", i)),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	meta, tr, err := loadRun(args[0])
	if err != nil {
		return err
	}
	// Ball and free joints have more q than u, so the index is checked
	// against both.
	if coord < 0 || coord >= len(tr.Q[0]) || coord >= len(tr.U[0]) {
		return errors.Errorf("coordinate %d out of range", coord)
	}
	p, err := analysis.NewPhasePortrait(column(tr.Q, coord), column(tr.U, coord))
	if err != nil {
		return err
	}
	minX, maxX, minY, maxY := p.Bounds()
	fmt.Printf("phase portrait: %s (%s)\n", meta.ID, meta.Model)
	fmt.Printf("x: q%d [%.3f, %.3f]  y: u%d [%.3f, %.3f]\n\n", coord, minX, maxX, coord, minY, maxY)
	fmt.Print(p.ASCII(70, 20))
	fmt.Printf("\nlegend: . = early, o = middle, ● = late\n")
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, tr, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if coord < 0 || coord >= len(tr.Q[0]) {
		return errors.Errorf("coordinate %d out of range", coord)
	}
	if meta.Adaptive {
		return errors.New("frequency analysis needs a fixed-step run")
	}
	signal := column(tr.Q, coord)
	ps := analysis.PowerSpectrum(signal)
	if len(ps) > 8 {
		ps = ps[:len(ps)/4]
	}
	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("model: %s\n\n", meta.Model)
	fmt.Println(asciigraph.Plot(ps,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("power spectrum (q%d)", coord)),
	))
	fmt.Println()

	freq, err := analysis.DominantFrequency(signal, meta.Dt)
	if err != nil {
		return err
	}
	fmt.Printf("dominant frequency: %.3f hz\n", freq)
	if freq > 0 {
		fmt.Printf("period: %.3f s\n", 1/freq)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	format := "json"
	if len(args) > 1 {
		format = args[1]
	}
	st := store.New(dataDir)
	switch format {
	case "json":
		return st.ExportJSON(os.Stdout, args[0])
	case "csv":
		tr, err := st.LoadTrajectory(args[0])
		if err != nil {
			return err
		}
		return store.WriteCSV(os.Stdout, &sim.Result{Times: tr.Times, Q: tr.Q, U: tr.U})
	}
	return errors.Errorf("unknown export format %q", format)
}

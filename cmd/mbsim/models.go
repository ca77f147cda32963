package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/mbsim/internal/config"
	"github.com/san-kum/mbsim/internal/models"
	"github.com/san-kum/mbsim/internal/stage"
	"github.com/san-kum/mbsim/internal/topology"
)

func listModels(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tDESCRIPTION\tPARAMS")
	for _, name := range models.Names() {
		desc, err := models.Describe(name)
		if err != nil {
			return err
		}
		defaults, err := models.Defaults(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, desc, formatParams(defaults))
	}
	return w.Flush()
}

func formatParams(p map[string]float64) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, p[k])
	}
	return strings.Join(parts, " ")
}

func listPresets(cmd *cobra.Command, args []string) error {
	presets := config.ListPresets(args[0])
	if len(presets) == 0 {
		fmt.Printf("no presets for model: %s\n", args[0])
		return nil
	}
	fmt.Printf("presets for %s:\n", args[0])
	for _, p := range presets {
		cfg := config.GetPreset(args[0], p)
		fmt.Printf("  %-14s %s dt=%g time=%g %s\n", p, cfg.Integrator, cfg.Dt, cfg.Duration, formatParams(cfg.Params))
	}
	return nil
}

func inspectModel(cmd *cobra.Command, args []string) error {
	overrides, err := parseParams(params)
	if err != nil {
		return err
	}
	m, err := models.New(args[0], overrides)
	if err != nil {
		return err
	}
	if euler {
		if err := m.SetUseEulerAngles(true); err != nil {
			return err
		}
	}
	sys := m.System
	s := m.NewState()
	if err := sys.Realize(s, stage.Report); err != nil {
		return err
	}
	topo := sys.Topology()

	fmt.Printf("%s: %d bodies, %d mobilities, %d q, %d constraints\n\n",
		m.Name, sys.NBodies(), sys.NMobilities(), s.NQ(), sys.NConstraints())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BODY\tNAME\tPARENT\tMOBILIZER\tQ\tU\tMASS\tORIGIN")
	for b := 1; b < sys.NBodies(); b++ {
		body := topo.Body(b)
		qs, nq := s.QSlot(b)
		x, err := s.BodyTransform(b)
		if err != nil {
			return err
		}
		mass, err := sys.BodyMass(s, b)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%g\t(%.3f, %.3f, %.3f)\n",
			b, body.Name, bodyName(topo, body.Parent), body.Mobilizer.Type(),
			span(qs, nq), span(body.UStart, body.NU), mass, x.P.X, x.P.Y, x.P.Z)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if sys.NConstraints() > 0 {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CONSTRAINT\tKIND\tBODIES\tHOLONOMIC\tNONHOLONOMIC\tACCELERATION")
		for c := 0; c < sys.NConstraints(); c++ {
			con := topo.Constraint(c)
			n := con.Counts()
			names := make([]string, 0, len(con.Bodies()))
			for _, b := range con.Bodies() {
				names = append(names, bodyName(topo, b))
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\n", c, con.Name(), strings.Join(names, ","),
				n.Holonomic, n.Nonholonomic, n.Acceleration)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		qn, _ := sys.CalcQConstraintNorm(s)
		un, _ := sys.CalcUConstraintNorm(s)
		fmt.Printf("\ninitial constraint error: |qerr| %.3e  |uerr| %.3e\n", qn, un)
	}

	ke, _ := sys.KineticEnergy(s)
	pe, _ := sys.PotentialEnergy(s)
	fmt.Printf("\nq = %s\nu = %s\n", formatVec(s.Q()), formatVec(s.U()))
	fmt.Printf("energy: KE %.6g  PE %.6g  total %.6g\n", ke, pe, ke+pe)
	return nil
}

func bodyName(topo *topology.Topology, b int) string {
	if b == topology.Ground {
		return "ground"
	}
	return topo.Body(b).Name
}

func span(start, n int) string {
	switch n {
	case 0:
		return "-"
	case 1:
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d-%d", start, start+n-1)
}

func formatVec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4g", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

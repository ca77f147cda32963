package config

import "sort"

func preset(model string, integ string, dt, duration float64, params map[string]float64) *Config {
	cfg := DefaultConfig()
	cfg.Model = model
	cfg.Integrator = integ
	cfg.Dt = dt
	cfg.Duration = duration
	cfg.Params = params
	return cfg
}

var Presets = map[string]map[string]*Config{
	"pendulum": {
		"small":    preset("pendulum", "rk4", 0.01, 20, map[string]float64{"theta0": 0.2}),
		"large":    preset("pendulum", "rk4", 0.01, 20, map[string]float64{"theta0": 2.5}),
		"spinning": preset("pendulum", "rk4", 0.01, 30, map[string]float64{"theta0": 0.1, "omega0": 8}),
		"damped":   preset("pendulum", "rk4", 0.01, 30, map[string]float64{"theta0": 1, "damping": 0.2}),
	},
	"double_pendulum": {
		"symmetric": preset("double_pendulum", "rk4", 0.005, 30, map[string]float64{"theta1": 1.5, "theta2": 1.5}),
		"chaos":     preset("double_pendulum", "rk4", 0.005, 60, map[string]float64{"theta1": 3, "theta2": 3}),
		"gentle":    preset("double_pendulum", "rk4", 0.01, 30, map[string]float64{"theta1": 0.3, "theta2": 0.3}),
	},
	"chain": {
		"swing": preset("chain", "rk4", 0.002, 10, map[string]float64{"n": 6, "theta0": 0.8}),
	},
	"pin_slider": {
		"scenario": preset("pin_slider", "rk4", 0.005, 5, nil),
		"spring":   preset("pin_slider", "rk4", 0.005, 10, map[string]float64{"k": 50, "rest": 0.5}),
	},
	"bend_stretch": {
		"orbit": preset("bend_stretch", "verlet", 0.002, 20, nil),
	},
	"four_bar": {
		"crank":        preset("four_bar", "rk4", 0.002, 10, nil),
		"gravity_only": preset("four_bar", "rk45", 0.005, 10, map[string]float64{"omega0": 0}),
	},
	"spinning_top": {
		"sleeping":   preset("spinning_top", "rk4", 0.0005, 5, map[string]float64{"tilt": 0.01}),
		"precessing": preset("spinning_top", "rk4", 0.0005, 5, nil),
	},
	"tumbling_box": {
		"dzhanibekov": preset("tumbling_box", "rk4", 0.001, 20, nil),
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

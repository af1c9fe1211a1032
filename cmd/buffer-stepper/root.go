package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"klipper-buffer-stepper/pkg/config"
	"klipper-buffer-stepper/pkg/motion"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "buffer-stepper",
	Short: "Filament buffer stepper host.",
	Long: `Filament buffer stepper host. A sensor edge schedules a fixed ` +
		`length push on a dedicated controller, timed against that ` +
		`controller's clock.`,
	SilenceUsage: true,
}

var (
	configPath string
	listenAddr string

	profileDistance float64
	profileVelocity float64
	profileAccel    float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the buffer stepper host.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, appOptions{Listen: listenAddr, ListenSet: cmd.Flags().Changed("listen")})
		if err != nil {
			return err
		}
		return a.run()
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate a configuration file and exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkConfig(cmd.OutOrStdout(), configPath)
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the motion profile of a single push.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printProfile(cmd.OutOrStdout(), profileDistance, profileVelocity, profileAccel)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, checkConfigCmd} {
		c.Flags().StringVarP(&configPath, "config", "c", "printer.cfg", "configuration file")
	}
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "API listen address, overrides [buffer_stepper_host] listen")

	profileCmd.Flags().Float64Var(&profileDistance, "distance", 15, "move distance in mm")
	profileCmd.Flags().Float64Var(&profileVelocity, "velocity", 5, "cruise velocity in mm/s")
	profileCmd.Flags().Float64Var(&profileAccel, "accel", 0, "acceleration in mm/s^2, 0 for constant velocity")

	rootCmd.AddCommand(runCmd, checkConfigCmd, profileCmd)
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func checkConfig(w io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, appOptions{DryRun: true})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "configuration OK: %d buffer_stepper section(s)\n", len(a.steppers))
	for _, bs := range a.steppers {
		c := bs.Config()
		fmt.Fprintf(w, "  %s: mcu=%s endstop=%s push_length=%g velocity=%g accel=%g\n",
			c.Name, c.MCU, c.EndstopPin.FullName(), c.PushLength, c.Velocity, c.Accel)
	}
	return nil
}

func printProfile(w io.Writer, distance, velocity, accel float64) error {
	if velocity <= 0 {
		return errors.New("velocity must be above zero")
	}
	if accel < 0 {
		return errors.New("accel must not be negative")
	}
	p := motion.ComputeProfile(distance, velocity, accel)
	shape := "trapezoid"
	switch {
	case accel == 0:
		shape = "constant"
	case p.Triangular:
		shape = "triangle"
	}
	fmt.Fprintf(w, "shape:    %s\n", shape)
	fmt.Fprintf(w, "accel_t:  %.6f s\n", p.AccelT)
	fmt.Fprintf(w, "cruise_t: %.6f s\n", p.CruiseT)
	fmt.Fprintf(w, "decel_t:  %.6f s\n", p.DecelT)
	fmt.Fprintf(w, "cruise_v: %.6f mm/s\n", p.CruiseV)
	fmt.Fprintf(w, "duration: %.6f s\n", p.Duration())
	fmt.Fprintf(w, "distance: %.6f mm\n", p.AxisR*p.Distance())
	return nil
}

package cmd

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/netexp/scenario"
)

const twoNodes = `
name: two-nodes
stop: 1s
topology:
  kind: chain
  length: 2
  link: {capacity: 8Mbps, delay: 2ms}
sinks:
  - {node: n1, port: 9}
generators:
  - from: [n0]
    to: {node: n1, port: 9}
    rate: 8Mbps
    size: 1000
    packets: 3
`

var _ = Describe("Commands", func() {
	var (
		out  *bytes.Buffer
		errs *bytes.Buffer
		dir  string
	)

	execute := func(args ...string) error {
		rootCmd.SetArgs(args)
		return rootCmd.Execute()
	}

	writeScenario := func(doc string) string {
		path := filepath.Join(dir, "scenario.yaml")
		Expect(os.WriteFile(path, []byte(doc), 0o644)).To(Succeed())

		return path
	}

	BeforeEach(func() {
		out = new(bytes.Buffer)
		errs = new(bytes.Buffer)
		dir = GinkgoT().TempDir()

		rootCmd.SetOut(out)
		rootCmd.SetErr(errs)

		for _, name := range []string{
			scenario.EnvStop, scenario.EnvSeed, scenario.EnvMonitorPort,
			scenario.EnvSQLite, scenario.EnvCSV,
		} {
			GinkgoT().Setenv(name, "")
			Expect(os.Unsetenv(name)).To(Succeed())
		}
	})

	It("should print the version", func() {
		Expect(execute("version")).To(Succeed())
		Expect(out.String()).To(HavePrefix("netexp "))
	})

	It("should validate the bundled scenarios", func() {
		path := filepath.Join("..", "..", "scenario", "testdata", "star.yaml")

		Expect(execute("validate", path)).To(Succeed())
		Expect(out.String()).To(ContainSubstring(
			"ok, 9 nodes, 1 sinks, 1 generators, 2 mutations"))
	})

	It("should report what is wrong with a scenario", func() {
		path := writeScenario("name: empty\nstop: 0s\ntopology: {kind: ring}\n")

		err := execute("validate", path)

		Expect(err).To(MatchError(scenario.ErrInvalidScenario))
		Expect(err.Error()).To(ContainSubstring(`unknown kind "ring"`))
	})

	It("should run a scenario and print the flows", func() {
		path := writeScenario(twoNodes)
		csvPath := filepath.Join(dir, "flows.csv")

		Expect(execute("run", path, "--stop", "0.5s", "--csv", csvPath)).
			To(Succeed())

		Expect(out.String()).To(ContainSubstring(
			"Flow 1 (10.1.1.1 -> 10.1.1.2)"))
		Expect(out.String()).To(ContainSubstring("  Rx Packets: 3\n"))
		Expect(errs.String()).To(ContainSubstring("done, 3 packets"))
		Expect(csvPath).To(BeAnExistingFile())
	})

	It("should filter the report by address", func() {
		path := writeScenario(twoNodes)

		Expect(execute("run", path, "--csv", "", "--src", "10.1.1.2")).
			To(Succeed())

		Expect(out.String()).NotTo(ContainSubstring("Flow 1"))
		Expect(out.String()).To(ContainSubstring("Total Bytes Sent: 0 bytes"))
	})

	It("should print the interface usage", func() {
		path := writeScenario(twoNodes)

		Expect(execute("run", path, "--stop", "1s", "--csv", "",
			"--utilization")).
			To(Succeed())

		Expect(out.String()).To(ContainSubstring("Interface Usage\n"))
		Expect(out.String()).To(ContainSubstring(
			"  node0/if1 (n0): 3 packets, busy 0.003 seconds, " +
				"utilization 0.30%\n"))
	})

	It("should reject a bad stop time", func() {
		path := writeScenario(twoNodes)

		Expect(execute("run", path, "--stop", "soon")).ToNot(Succeed())
	})

	It("should show the flows recorded by a run", func() {
		path := writeScenario(twoNodes)
		db := filepath.Join(dir, "results")

		Expect(execute("run", path, "--stop", "1s", "--csv", "",
			"--sqlite", db)).To(Succeed())

		out.Reset()
		Expect(execute("show", db+".sqlite3", "--usage")).To(Succeed())

		Expect(out.String()).To(ContainSubstring(
			"flow 1 UDP 10.1.1.1:49153 -> 10.1.1.2:9, tx 3, rx 3, lost 0,"))
		Expect(out.String()).To(ContainSubstring("1 of 1 flows\n"))
		Expect(out.String()).To(ContainSubstring(
			"node0/if1 (n0): 3 packets, utilization 0.30%"))

		Expect(execute("show", filepath.Join(dir, "missing.sqlite3"))).
			ToNot(Succeed())
	})
})

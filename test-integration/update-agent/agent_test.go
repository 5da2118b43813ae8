package integration

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/toolhive-update-agent/test-integration/update-agent/helpers"
)

var _ = Describe("Update Agent", Label("agent"), func() {
	var (
		tempDir      string
		updateServer *helpers.UpdateServer
		agent        *helpers.AgentTestHelper
	)

	startAgent := func(coordinator string) {
		configFile := helpers.WriteConfigYAML(tempDir, updateServer.URL, coordinator)
		agent = helpers.NewAgentTestHelper(ctx, configFile)
		Expect(agent.StartAgent()).To(Succeed())
		agent.WaitForAgentReady(10 * time.Second)
	}

	BeforeEach(func() {
		tempDir = createTempDir("update-agent-test-")
		updateServer = helpers.NewUpdateServer()
	})

	AfterEach(func() {
		if agent != nil {
			Expect(agent.StopAgent()).To(Succeed())
			agent = nil
		}
		updateServer.Close()
		cleanupTempDir(tempDir)
	})

	Context("Start sync", func() {
		It("should check for updates once when the agent starts", func() {
			startAgent("  syncOnResume: false")

			Eventually(updateServer.CheckCount, 5*time.Second).Should(Equal(1))
			Eventually(agent.LastResult, 5*time.Second).Should(Equal("UpToDate"))
			Consistently(updateServer.CheckCount, 300*time.Millisecond).Should(Equal(1))

			Expect(updateServer.LastQuery()).To(ContainSubstring("deploymentKey=integration-key"))
			Expect(updateServer.LastQuery()).To(ContainSubstring("clientId="))
		})

		It("should report a failed sync and keep running", func() {
			updateServer.FailNext(1)
			startAgent("  syncOnResume: false")

			Eventually(agent.LastResult, 5*time.Second).Should(Equal("UnknownError"))

			status, err := agent.PostRequest("SYNC")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusAccepted))
			Eventually(agent.LastResult, 5*time.Second).Should(Equal("UpToDate"))
		})
	})

	Context("Trigger requests", func() {
		It("should install an offered package when the trigger request arrives", func() {
			startAgent("  syncOnStart: false\n  syncOnResume: false")
			Consistently(updateServer.CheckCount, 300*time.Millisecond).Should(BeZero())

			hash := updateServer.Offer("v2", "1.0.0", []byte("package payload"), false)

			status, err := agent.PostRequest("SYNC")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusAccepted))

			Eventually(agent.LastResult, 5*time.Second).Should(Equal("UpdateInstalled"))

			data, err := os.ReadFile(filepath.Join(tempDir, "data", "packages", "current.json"))
			Expect(err).NotTo(HaveOccurred())
			var current map[string]any
			Expect(json.Unmarshal(data, &current)).To(Succeed())
			Expect(current["packageHash"]).To(Equal(hash))
			Expect(current["label"]).To(Equal("v2"))
		})

		It("should reject requests with other names", func() {
			startAgent("  syncOnStart: false\n  syncOnResume: false")

			status, err := agent.PostRequest("SOMETHING_ELSE")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusNotFound))

			Consistently(updateServer.CheckCount, 300*time.Millisecond).Should(BeZero())
		})

		It("should run one sync per request", func() {
			startAgent("  syncOnStart: false\n  syncOnResume: false")

			for range 3 {
				_, err := agent.PostRequest("SYNC")
				Expect(err).NotTo(HaveOccurred())
			}

			Eventually(updateServer.CheckCount, 5*time.Second).Should(Equal(3))
			Consistently(updateServer.CheckCount, 300*time.Millisecond).Should(Equal(3))
		})
	})

	Context("Lifecycle resume", func() {
		It("should sync every time the application returns to the foreground", func() {
			startAgent("  syncOnStart: false\n  syncOnResume: true")
			Eventually(agent.LoopState, 5*time.Second).Should(Equal("Waiting"))

			for _, state := range []string{"background", "active", "background", "active"} {
				code, err := agent.SetLifecycle(state)
				Expect(err).NotTo(HaveOccurred())
				Expect(code).To(Equal(http.StatusNoContent))
			}

			Eventually(updateServer.CheckCount, 5*time.Second).Should(Equal(2))
		})

		It("should not sync on resume when disabled", func() {
			startAgent("  syncOnStart: false\n  syncOnResume: false")

			_, err := agent.SetLifecycle("background")
			Expect(err).NotTo(HaveOccurred())
			_, err = agent.SetLifecycle("active")
			Expect(err).NotTo(HaveOccurred())

			Consistently(updateServer.CheckCount, 300*time.Millisecond).Should(BeZero())
		})
	})

	Context("Sync interval", func() {
		It("should keep syncing on the configured interval", func() {
			startAgent("  syncOnStart: false\n  syncOnResume: false\n  syncOnIntervalSeconds: 0.1")

			Eventually(updateServer.CheckCount, 5*time.Second).Should(BeNumerically(">=", 3))
		})
	})

	Context("Initial delay", func() {
		const delayed = "  syncOnResume: false\n  initialDelaySeconds: 3600\n  delayCancelRequestName: SKIP_DELAY"

		It("should hold the first sync until the delay is cancelled", func() {
			startAgent(delayed)
			Eventually(agent.LoopState, 5*time.Second).Should(Equal("Delaying"))
			Consistently(updateServer.CheckCount, 500*time.Millisecond).Should(BeZero())

			status, err := agent.PostRequest("SKIP_DELAY")
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusAccepted))

			Eventually(updateServer.CheckCount, 5*time.Second).Should(Equal(1))
		})

		It("should apply the delay only once per installation", func() {
			startAgent(delayed)
			_, err := agent.PostRequest("SKIP_DELAY")
			Expect(err).NotTo(HaveOccurred())
			Eventually(updateServer.CheckCount, 5*time.Second).Should(Equal(1))

			By("restarting the agent with the same data directory")
			Expect(agent.StopAgent()).To(Succeed())
			startAgent(delayed)

			Eventually(updateServer.CheckCount, 5*time.Second).Should(Equal(2))
		})
	})
})

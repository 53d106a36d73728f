package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"llama-bot/llms"
	"llama-bot/types"
)

func thread(id, title string, posts ...types.Post) *types.Thread {
	return &types.Thread{ID: types.ThreadID(id), Title: title, Posts: posts}
}

func by(author, text string) types.Post {
	return types.Post{Author: author, Group: "registered-users", Text: text}
}

var _ = Describe("BotAgent", func() {
	var (
		forum *fakeForum
		llm   *fakeLLM
		agent *BotAgent
		ctx   context.Context
	)

	newAgent := func() *BotAgent {
		return NewBotAgent(forum, llm, nil, AgentConfig{
			Interval:   10 * time.Millisecond,
			Generation: llms.DefaultOptions(),
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		llm = &fakeLLM{reply: "Here is my answer."}
		forum = newFakeForum(
			thread("1", "Owed", by("alice", "@llama what is Go?")),
			thread("2", "Answered", by("alice", "@llama hi"), by("llama", "hello")),
			thread("3", "Quiet", by("bob", "no mention here")),
		)
		agent = newAgent()
	})

	Describe("RunCycle", func() {
		It("replies only to threads that owe a reply", func() {
			report := agent.RunCycle(ctx)

			Expect(report).To(Equal(CycleReport{Scanned: 3, Replied: 1}))
			Expect(forum.repliesTo("1")).To(Equal([]string{"Here is my answer."}))
			Expect(forum.repliesTo("2")).To(BeEmpty())
			Expect(forum.repliesTo("3")).To(BeEmpty())
		})

		It("sends the assembled conversation and sampling options", func() {
			agent.RunCycle(ctx)

			Expect(llm.calls).To(HaveLen(1))
			conv := llm.calls[0]
			Expect(conv.System.Content).To(HaveSuffix("The discussion title is Owed"))
			Expect(conv.Turns).To(Equal([]types.Message{
				{Role: types.RoleUser, Content: "alice (in group registered-users): @llama what is Go?"},
			}))
			Expect(llm.opts[0]).To(Equal(types.GenerationOptions{MaxTokens: 256, Temperature: 0.6, TopP: 0.9}))
		})

		It("does not reply twice once its reply is visible", func() {
			agent.RunCycle(ctx)
			report := agent.RunCycle(ctx)

			Expect(report.Replied).To(BeZero())
			Expect(forum.repliesTo("1")).To(HaveLen(1))
			Expect(llm.callCount()).To(Equal(1))
		})

		It("answers a new mention after its own reply", func() {
			agent.RunCycle(ctx)
			forum.threads[0].Posts = append(forum.threads[0].Posts, by("carol", "@llama follow-up?"))

			report := agent.RunCycle(ctx)
			Expect(report.Replied).To(Equal(1))
			Expect(forum.repliesTo("1")).To(HaveLen(2))
		})

		It("processes threads in listing order", func() {
			agent.RunCycle(ctx)
			Expect(forum.fetched).To(Equal([]types.ThreadID{"1", "2", "3"}))
		})

		It("keeps scanning after a fetch failure", func() {
			forum.threads = append([]*types.Thread{thread("0", "Broken")}, forum.threads...)
			forum.fetchErrs["0"] = errors.New("connection reset")

			report := agent.RunCycle(ctx)
			Expect(report).To(Equal(CycleReport{Scanned: 4, Replied: 1, Failed: 1}))
			Expect(forum.repliesTo("1")).To(HaveLen(1))
		})

		It("keeps scanning after a generation failure", func() {
			forum.threads = append(forum.threads, thread("4", "Also owed", by("dave", "@llama ?")))
			llm.err = errors.New("model unavailable")

			report := agent.RunCycle(ctx)
			Expect(report).To(Equal(CycleReport{Scanned: 4, Failed: 2}))
			Expect(llm.callCount()).To(Equal(2))
		})

		It("treats an empty reply as a generation failure and posts nothing", func() {
			llm.reply = "  \n"

			report := agent.RunCycle(ctx)
			Expect(report.Failed).To(Equal(1))
			Expect(forum.repliesTo("1")).To(BeEmpty())
		})

		It("retries a failed publish on the next cycle", func() {
			forum.replyErrs["1"] = errors.New("503")

			report := agent.RunCycle(ctx)
			Expect(report.Failed).To(Equal(1))
			Expect(forum.repliesTo("1")).To(BeEmpty())

			delete(forum.replyErrs, "1")
			report = agent.RunCycle(ctx)
			Expect(report.Replied).To(Equal(1))
			Expect(forum.repliesTo("1")).To(HaveLen(1))
		})

		It("isolates a panicking thread", func() {
			llm.panicky = true
			forum.threads = append(forum.threads, thread("5", "After", by("erin", "plain")))

			report := agent.RunCycle(ctx)
			Expect(report.Failed).To(Equal(1))
			Expect(report.Scanned).To(Equal(4))
		})

		It("ends the cycle when the listing fails", func() {
			forum.listErr = &types.FetchError{Op: "list", Err: errors.New("401")}

			report := agent.RunCycle(ctx)
			Expect(report).To(Equal(CycleReport{}))
			Expect(forum.fetched).To(BeEmpty())
			Expect(agent.State()).To(Equal(StateIdle))
		})

		It("skips threads locked by another responder", func() {
			agent = NewBotAgent(forum, llm, stuckLocker{}, AgentConfig{Interval: time.Second, Generation: llms.DefaultOptions()})

			report := agent.RunCycle(ctx)
			Expect(report).To(Equal(CycleReport{Scanned: 3, Skipped: 3}))
			Expect(forum.fetched).To(BeEmpty())
			Expect(llm.callCount()).To(BeZero())
		})

		It("counts lock failures as thread failures", func() {
			agent = NewBotAgent(forum, llm, brokenLocker{}, AgentConfig{Interval: time.Second, Generation: llms.DefaultOptions()})

			report := agent.RunCycle(ctx)
			Expect(report).To(Equal(CycleReport{Scanned: 3, Failed: 3}))
		})

		It("records when the cycle finished", func() {
			Expect(agent.LastCycle()).To(BeZero())
			agent.RunCycle(ctx)
			Expect(agent.LastCycle()).To(BeTemporally("~", time.Now(), time.Second))
			Expect(agent.State()).To(Equal(StateIdle))
		})
	})

	Describe("Run", func() {
		It("polls repeatedly until the context is cancelled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- agent.Run(runCtx) }()

			Eventually(func() int {
				forum.mu.Lock()
				defer forum.mu.Unlock()
				return len(forum.fetched)
			}).Should(BeNumerically(">=", 6))

			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
			Expect(forum.repliesTo("1")).To(HaveLen(1))
		})
	})
})

var _ = Describe("errorKind", func() {
	DescribeTable("classifies per-thread errors",
		func(err error, kind string) {
			Expect(errorKind(err)).To(Equal(kind))
		},
		Entry("fetch", &types.FetchError{Op: "thread", Err: errors.New("x")}, "fetch"),
		Entry("generation", &types.GenerationError{Err: errors.New("x")}, "generation"),
		Entry("publish", &types.PublishError{Err: errors.New("x")}, "publish"),
		Entry("lock", &lockError{err: errors.New("x")}, "lock"),
		Entry("other", errors.New("x"), "other"),
	)
})

var _ = Describe("status server", func() {
	It("reports health and serves metrics", func() {
		agent := NewBotAgent(newFakeForum(), &fakeLLM{}, nil, AgentConfig{Interval: time.Second})
		server := httptest.NewServer(newStatusMux(agent))
		DeferCleanup(server.Close)

		resp, err := http.Get(server.URL + "/health")
		Expect(err).NotTo(HaveOccurred())
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring("state=idle last_cycle=never"))

		agent.RunCycle(context.Background())

		resp, err = http.Get(server.URL + "/metrics")
		Expect(err).NotTo(HaveOccurred())
		body, _ = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		Expect(string(body)).To(ContainSubstring("llamabot_poll_cycles_total"))
	})
})

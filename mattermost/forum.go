// Package mattermost implements types.Forum on top of a Mattermost channel.
// The channel plays the role of the category and every root post starts a
// thread.
package mattermost

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattermost/mattermost-server/v6/model"

	"llama-bot/types"
)

const (
	pageSize       = 60
	maxTitleLength = 80
)

// api is the subset of model.Client4 the forum needs
type api interface {
	GetPostsForChannel(channelId string, page, perPage int, etag string, collapsedThreads bool) (*model.PostList, *model.Response, error)
	GetPostThread(postId string, etag string, collapsedThreads bool) (*model.PostList, *model.Response, error)
	GetUser(userId, etag string) (*model.User, *model.Response, error)
	CreatePost(post *model.Post) (*model.Post, *model.Response, error)
}

type Forum struct {
	client    api
	channelID string
	users     map[string]*model.User
}

// New connects to a Mattermost server. Client4 calls take no context, so a
// positive timeout is applied to its HTTP client instead.
func New(serverURL, accessToken, channelID string, timeout time.Duration) *Forum {
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(accessToken)
	if timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}
	return newForum(client, channelID)
}

func newForum(client api, channelID string) *Forum {
	return &Forum{
		client:    client,
		channelID: channelID,
		users:     make(map[string]*model.User),
	}
}

// ListThreads returns the root posts of the first page of the channel.
func (f *Forum) ListThreads(ctx context.Context) ([]types.ThreadSummary, error) {
	list, _, err := f.client.GetPostsForChannel(f.channelID, 0, pageSize, "", true)
	if err != nil {
		return nil, &types.FetchError{Op: "list", Err: fmt.Errorf("failed to get channel posts: %w", err)}
	}

	threads := make([]types.ThreadSummary, 0, len(list.Order))
	for _, id := range list.Order {
		post, ok := list.Posts[id]
		if !ok || post.RootId != "" {
			continue
		}
		threads = append(threads, types.ThreadSummary{
			ID:    types.ThreadID(post.Id),
			Title: title(post.Message),
		})
	}
	return threads, nil
}

// GetThread returns the root post and its replies sorted by creation time.
func (f *Forum) GetThread(ctx context.Context, id types.ThreadID) (*types.Thread, error) {
	list, _, err := f.client.GetPostThread(string(id), "", true)
	if err != nil {
		return nil, &types.FetchError{Op: "thread", ThreadID: id, Err: fmt.Errorf("failed to get thread: %w", err)}
	}

	posts := make([]*model.Post, 0, len(list.Posts))
	for _, p := range list.Posts {
		posts = append(posts, p)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreateAt == posts[j].CreateAt {
			return posts[i].Id < posts[j].Id
		}
		return posts[i].CreateAt < posts[j].CreateAt
	})

	thread := &types.Thread{ID: id, Posts: make([]types.Post, 0, len(posts))}
	for _, p := range posts {
		if p.Id == string(id) {
			thread.Title = title(p.Message)
		}
		author, group := f.resolveUser(p.UserId)
		thread.Posts = append(thread.Posts, types.Post{
			Author: author,
			Group:  group,
			Text:   p.Message,
		})
	}
	return thread, nil
}

// Reply posts content as a threaded reply to the root post.
func (f *Forum) Reply(ctx context.Context, id types.ThreadID, content string) error {
	post := &model.Post{
		ChannelId: f.channelID,
		Message:   content,
		RootId:    string(id),
	}

	if _, resp, err := f.client.CreatePost(post); err != nil {
		pubErr := &types.PublishError{ThreadID: id, Err: fmt.Errorf("failed to post message: %w", err)}
		if resp != nil && resp.StatusCode != http.StatusOK {
			pubErr.StatusCode = resp.StatusCode
		}
		return pubErr
	}
	return nil
}

// resolveUser maps a user id to username and position. Lookups that fail fall
// back to the unknown sentinels and are retried on the next scan.
func (f *Forum) resolveUser(userID string) (string, string) {
	user, ok := f.users[userID]
	if !ok {
		var err error
		user, _, err = f.client.GetUser(userID, "")
		if err != nil || user == nil {
			return types.UnknownAuthor, types.UnknownGroup
		}
		f.users[userID] = user
	}

	group := user.Position
	if group == "" {
		group = types.UnknownGroup
	}
	return user.Username, group
}

func title(message string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	if utf8.RuneCountInString(line) > maxTitleLength {
		line = string([]rune(line)[:maxTitleLength]) + "..."
	}
	return line
}

// Package scrape fetches GitHub profile data over GraphQL and assembles one
// UserRecord per user: star and commit aggregates, emoji density over commit
// messages and READMEs, and toxicity scores from the external classifier.
package scrape

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/wallofshame/gitranker/internal/errors"
	"github.com/wallofshame/gitranker/internal/store"
	"github.com/wallofshame/gitranker/internal/toxicity"
	"github.com/wallofshame/gitranker/internal/types"
)

const profileQuery = `
query($login: String!) {
  user(login: $login) {
    login
    name
    bio
    company
    location
    followers {
      totalCount
    }
    repositories(first: 10, orderBy: {field: STARGAZERS, direction: DESC}, ownerAffiliations: OWNER) {
      nodes {
        name
        stargazerCount
        primaryLanguage { name }
        description
      }
      totalCount
    }
    contributionsCollection {
      totalCommitContributions
      restrictedContributionsCount
    }
  }
}
`

const recentCommitsQuery = `
query($login: String!) {
  user(login: $login) {
    repositories(first: 100, orderBy: {field: PUSHED_AT, direction: DESC}, ownerAffiliations: OWNER) {
      nodes {
        name
        defaultBranchRef {
          target {
            ... on Commit {
              history(first: 100) {
                nodes {
                  message
                  author {
                    user { login }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}
`

const readmeQuery = `
query($login: String!) {
  user(login: $login) {
    repositories(first: 10, orderBy: {field: STARGAZERS, direction: DESC}, ownerAffiliations: OWNER) {
      nodes {
        name
        object(expression: "HEAD:README.md") {
          ... on Blob {
            text
          }
        }
      }
    }
  }
}
`

// Querier executes one GraphQL query, decoding the data payload into out.
// *github.GraphQLClient satisfies it; tests substitute a canned one.
type Querier interface {
	Query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error
}

type profileResponse struct {
	User *struct {
		Login     string `json:"login"`
		Name      string `json:"name"`
		Bio       string `json:"bio"`
		Company   string `json:"company"`
		Location  string `json:"location"`
		Followers struct {
			TotalCount int `json:"totalCount"`
		} `json:"followers"`
		Repositories struct {
			Nodes []struct {
				Name           string `json:"name"`
				StargazerCount int    `json:"stargazerCount"`
			} `json:"nodes"`
			TotalCount int `json:"totalCount"`
		} `json:"repositories"`
		ContributionsCollection struct {
			TotalCommitContributions     int `json:"totalCommitContributions"`
			RestrictedContributionsCount int `json:"restrictedContributionsCount"`
		} `json:"contributionsCollection"`
	} `json:"user"`
}

type commitsResponse struct {
	User *struct {
		Repositories struct {
			Nodes []struct {
				Name             string `json:"name"`
				DefaultBranchRef *struct {
					Target *struct {
						History struct {
							Nodes []struct {
								Message string `json:"message"`
								Author  *struct {
									User *struct {
										Login string `json:"login"`
									} `json:"user"`
								} `json:"author"`
							} `json:"nodes"`
						} `json:"history"`
					} `json:"target"`
				} `json:"defaultBranchRef"`
			} `json:"nodes"`
		} `json:"repositories"`
	} `json:"user"`
}

type readmeResponse struct {
	User *struct {
		Repositories struct {
			Nodes []struct {
				Name   string `json:"name"`
				Object *struct {
					Text string `json:"text"`
				} `json:"object"`
			} `json:"nodes"`
		} `json:"repositories"`
	} `json:"user"`
}

// Scraper assembles UserRecords from GraphQL data, scores them, and persists
// both the record and the raw artifacts behind it.
type Scraper struct {
	gql    Querier
	scorer toxicity.Scorer
	store  store.Store
	now    func() time.Time
}

// NewScraper wires the GraphQL client, toxicity scorer, and store together.
func NewScraper(gql Querier, scorer toxicity.Scorer, st store.Store) *Scraper {
	return &Scraper{
		gql:    gql,
		scorer: scorer,
		now:    time.Now,
		store:  st,
	}
}

// ScrapeUser fetches one user's profile, commit messages, and READMEs, scores
// emoji density and toxicity, persists the record plus raw artifacts, and
// returns the record. A nonexistent user yields a not-found error; commit and
// README fetch failures degrade to empty inputs rather than failing the
// scrape.
func (s *Scraper) ScrapeUser(ctx context.Context, username string) (types.UserRecord, error) {
	var profile profileResponse
	if err := s.gql.Query(ctx, profileQuery, map[string]interface{}{"login": username}, &profile); err != nil {
		return types.UserRecord{}, err
	}
	if profile.User == nil {
		return types.UserRecord{}, errors.NewNotFoundError("user")
	}
	user := profile.User

	totalStars := 0
	topRepos := make([]string, 0, len(user.Repositories.Nodes))
	for _, repo := range user.Repositories.Nodes {
		totalStars += repo.StargazerCount
		topRepos = append(topRepos, repo.Name)
	}

	commitMessages := s.fetchCommitMessages(ctx, username)
	readmes := s.fetchReadmes(ctx, username)

	readmeTexts := make([]string, 0, len(readmes))
	for _, text := range readmes {
		readmeTexts = append(readmeTexts, text)
	}

	emojiScore := CountEmojis(append(append([]string{}, commitMessages...), readmeTexts...))

	scores := toxicity.Average(ctx, s.scorer, commitMessages)
	worst := toxicity.FindWorst(ctx, s.scorer, commitMessages)

	rec := types.UserRecord{
		Stars:           totalStars,
		CommitsLastYear: user.ContributionsCollection.TotalCommitContributions + user.ContributionsCollection.RestrictedContributionsCount,
		EmojiScore:      emojiScore,
		TopRepos:        topRepos,
		Bio:             user.Bio,
		Name:            user.Name,
		Company:         user.Company,
		Location:        user.Location,
		Followers:       user.Followers.TotalCount,
		Scores:          scores,
		ScrapedAt:       s.now().UTC().Format(time.RFC3339),
	}
	if worst != nil {
		rec.WorstCommitMsg = worst.Message
		rec.WorstCommitToxicity = worst.Score
	}

	if err := s.store.SaveRawData(username, commitMessages, readmes, worst); err != nil {
		slog.Warn("Failed to save raw data", "username", username, "error", err)
	}
	if err := s.store.SaveProfile(username, rec); err != nil {
		return types.UserRecord{}, err
	}

	return rec, nil
}

// fetchCommitMessages collects the user's own commit messages from the default
// branches of their 100 most recently pushed repositories. Any failure is
// non-critical and yields an empty slice.
func (s *Scraper) fetchCommitMessages(ctx context.Context, username string) []string {
	var resp commitsResponse
	if err := s.gql.Query(ctx, recentCommitsQuery, map[string]interface{}{"login": username}, &resp); err != nil {
		slog.Warn("Commit fetch failed, emoji score will omit commits", "username", username, "error", err)
		return nil
	}
	if resp.User == nil {
		return nil
	}

	var messages []string
	for _, repo := range resp.User.Repositories.Nodes {
		if repo.DefaultBranchRef == nil || repo.DefaultBranchRef.Target == nil {
			continue
		}
		for _, commit := range repo.DefaultBranchRef.Target.History.Nodes {
			// Only commits authored by the scraped user count against them.
			if commit.Author == nil || commit.Author.User == nil {
				continue
			}
			if strings.EqualFold(commit.Author.User.Login, username) {
				messages = append(messages, commit.Message)
			}
		}
	}
	return messages
}

// fetchReadmes returns README.md content by repo name for the user's top ten
// starred repositories. Failures degrade to an empty map.
func (s *Scraper) fetchReadmes(ctx context.Context, username string) map[string]string {
	var resp readmeResponse
	if err := s.gql.Query(ctx, readmeQuery, map[string]interface{}{"login": username}, &resp); err != nil {
		slog.Warn("README fetch failed, emoji score will omit readmes", "username", username, "error", err)
		return map[string]string{}
	}

	readmes := map[string]string{}
	if resp.User == nil {
		return readmes
	}
	for _, repo := range resp.User.Repositories.Nodes {
		if repo.Object != nil {
			readmes[repo.Name] = repo.Object.Text
		}
	}
	return readmes
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/artdex/api/internal/config"
	"github.com/artdex/api/internal/model"
	"github.com/artdex/api/internal/normalize"
)

// Issue is one catalog invariant violation found on a post's list
// field.
type Issue struct {
	PostID  string `json:"post_id"`
	ID      int64  `json:"id"`
	Field   string `json:"field"`
	Type    string `json:"type"`
	Details string `json:"details"`
}

func main() {
	workers := flag.Int("workers", 10, "Number of parallel workers")
	outputFile := flag.String("output", "audit_results.json", "Output file for results")
	fix := flag.Bool("fix", false, "Rewrite violating fields through the normalizer")
	flag.Parse()

	godotenv.Load()
	cfg := config.Load()
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Get total count
	var total int64
	db.Model(&model.Post{}).Count(&total)

	fmt.Printf("Auditing %d posts with %d workers...\n", total, *workers)

	// Create channel for posts
	postChan := make(chan model.Post, *workers*10)
	issueChan := make(chan Issue, 1000)

	var processed int64
	var issueCount int64
	var fixed int64
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for post := range postChan {
				issues := auditPost(post)
				for _, issue := range issues {
					issueChan <- issue
					atomic.AddInt64(&issueCount, 1)
				}
				if *fix && len(issues) > 0 {
					if err := fixPost(db, post); err != nil {
						log.Printf("Failed to fix post %s: %v", post.PostID, err)
					} else {
						atomic.AddInt64(&fixed, 1)
					}
				}
				p := atomic.AddInt64(&processed, 1)
				if p%1000 == 0 {
					fmt.Printf("Progress: %d/%d (%.1f%%), Issues found: %d\n",
						p, total, float64(p)/float64(total)*100, atomic.LoadInt64(&issueCount))
				}
			}
		}()
	}

	// Collect issues
	var issues []Issue
	var issuesMu sync.Mutex
	done := make(chan bool)
	go func() {
		for issue := range issueChan {
			issuesMu.Lock()
			issues = append(issues, issue)
			issuesMu.Unlock()
		}
		done <- true
	}()

	// Fetch posts in batches
	startTime := time.Now()
	batchSize := 500
	offset := 0
	for {
		var posts []model.Post
		result := db.Order("id ASC").
			Offset(offset).
			Limit(batchSize).
			Find(&posts)

		if result.Error != nil {
			log.Printf("Database error: %v", result.Error)
			break
		}

		if len(posts) == 0 {
			break
		}

		for _, post := range posts {
			postChan <- post
		}
		offset += batchSize
	}

	close(postChan)
	wg.Wait()
	close(issueChan)
	<-done

	elapsed := time.Since(startTime)
	fmt.Printf("\n=== Audit Complete ===\n")
	fmt.Printf("Total posts: %d\n", total)
	fmt.Printf("Issues found: %d\n", len(issues))
	if *fix {
		fmt.Printf("Posts fixed: %d\n", atomic.LoadInt64(&fixed))
	}
	fmt.Printf("Time elapsed: %v\n", elapsed)

	// Group issues by type
	issuesByType := make(map[string][]Issue)
	for _, issue := range issues {
		issuesByType[issue.Type] = append(issuesByType[issue.Type], issue)
	}

	fmt.Printf("\n=== Issues by Type ===\n")
	for typ, typeIssues := range issuesByType {
		fmt.Printf("%s: %d\n", typ, len(typeIssues))
	}

	// Save results
	output := map[string]interface{}{
		"summary": map[string]interface{}{
			"total":   total,
			"issues":  len(issues),
			"elapsed": elapsed.String(),
		},
		"issuesByType": issuesByType,
		"issues":       issues,
	}

	jsonData, _ := json.MarshalIndent(output, "", "  ")
	if err := os.WriteFile(*outputFile, jsonData, 0644); err != nil {
		log.Printf("Failed to write output file: %v", err)
	} else {
		fmt.Printf("\nResults saved to %s\n", *outputFile)
	}
}

// auditPost checks each list field against the invariant the
// normalizer guarantees: trimmed NFC elements, nothing empty, no two
// elements equal case-insensitively.
func auditPost(post model.Post) []Issue {
	var issues []Issue

	for _, field := range model.Fields() {
		values := post.Values(field)
		seen := make(map[string]string, len(values))

		for i, v := range values {
			clean, ok := normalize.Text(v)
			if !ok {
				issues = append(issues, Issue{
					PostID:  post.PostID,
					ID:      post.ID,
					Field:   string(field),
					Type:    "EMPTY_ELEMENT",
					Details: fmt.Sprintf("Element %d is empty or whitespace", i),
				})
				continue
			}
			if clean != v {
				issues = append(issues, Issue{
					PostID:  post.PostID,
					ID:      post.ID,
					Field:   string(field),
					Type:    "NOT_NORMALIZED",
					Details: fmt.Sprintf("Element %q should be stored as %q", v, clean),
				})
			}

			key := normalize.Fold(clean)
			if prev, dup := seen[key]; dup {
				issues = append(issues, Issue{
					PostID:  post.PostID,
					ID:      post.ID,
					Field:   string(field),
					Type:    "DUPLICATE_ELEMENT",
					Details: fmt.Sprintf("%q duplicates %q case-insensitively", v, prev),
				})
				continue
			}
			seen[key] = v
		}
	}

	if strings.TrimSpace(post.PostID) == "" {
		issues = append(issues, Issue{
			PostID:  post.PostID,
			ID:      post.ID,
			Type:    "EMPTY_POST_ID",
			Details: "Post has no external id",
		})
	}

	return issues
}

// fixPost rewrites all three fields through the normalizer. A plain
// update is enough here: the audit runs offline, not against live
// apply traffic.
func fixPost(db *gorm.DB, post model.Post) error {
	updates := map[string]interface{}{}
	for _, field := range model.Fields() {
		before := post.Values(field)
		after := normalize.Field(before)
		if !equalValues(before, after) {
			updates[string(field)] = pq.StringArray(after)
		}
	}
	if len(updates) == 0 {
		return nil
	}
	return db.Model(&model.Post{}).Where("id = ?", post.ID).Updates(updates).Error
}

func equalValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

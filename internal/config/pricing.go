package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Pricing maps each billable action to its credit cost.
type Pricing struct {
	QuestionAsked   int `json:"questionAsked"`
	ReportGenerated int `json:"reportGenerated"`
	SourceProcessed int `json:"sourceProcessed"`
	ImageOCR        int `json:"imageOCR"`
	LiveDataRefresh int `json:"liveDataRefresh"`
}

// DefaultPricing returns the built-in credit costs.
func DefaultPricing() Pricing {
	return Pricing{
		QuestionAsked:   1,
		ReportGenerated: 3,
		SourceProcessed: 1,
		ImageOCR:        2,
		LiveDataRefresh: 1,
	}
}

// PricingManager manages the credit pricing table with hot-reload support.
type PricingManager struct {
	mu          sync.RWMutex
	pricing     Pricing
	pricingFile string
	watcher     *fsnotify.Watcher
}

// NewPricingManager loads the pricing file (creating it with defaults when
// missing) and starts watching it for changes.
func NewPricingManager(pricingFile string) (*PricingManager, error) {
	pm := &PricingManager{
		pricingFile: pricingFile,
	}

	if err := pm.load(); err != nil {
		log.Printf("⚠️ [Pricing] Config file not found, using defaults: %v", err)
		pm.pricing = DefaultPricing()
		if err := pm.save(); err != nil {
			log.Printf("⚠️ [Pricing] Failed to save default pricing: %v", err)
		}
	}

	if err := pm.startWatcher(); err != nil {
		log.Printf("⚠️ [Pricing] Failed to start pricing watcher: %v", err)
	}

	return pm, nil
}

// Get returns the current pricing table.
func (pm *PricingManager) Get() Pricing {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.pricing
}

// Update validates, persists and applies a new pricing table.
func (pm *PricingManager) Update(p Pricing) error {
	if err := validatePricing(p); err != nil {
		return err
	}

	pm.mu.Lock()
	pm.pricing = p
	pm.mu.Unlock()

	if err := pm.save(); err != nil {
		return err
	}

	log.Printf("✅ [Pricing] Updated: question=%d, report=%d, source=%d",
		p.QuestionAsked, p.ReportGenerated, p.SourceProcessed)
	return nil
}

// Close stops the file watcher.
func (pm *PricingManager) Close() error {
	if pm.watcher != nil {
		return pm.watcher.Close()
	}
	return nil
}

func (pm *PricingManager) load() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	data, err := os.ReadFile(pm.pricingFile)
	if err != nil {
		return err
	}

	var p Pricing
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := validatePricing(p); err != nil {
		return err
	}

	pm.pricing = p
	log.Printf("✅ [Pricing] Loaded: question=%d, report=%d, source=%d",
		p.QuestionAsked, p.ReportGenerated, p.SourceProcessed)
	return nil
}

func (pm *PricingManager) save() error {
	dir := filepath.Dir(pm.pricingFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	pm.mu.RLock()
	p := pm.pricing
	pm.mu.RUnlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(pm.pricingFile, data, 0644)
}

func (pm *PricingManager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	pm.watcher = watcher

	pricingBase := filepath.Base(pm.pricingFile)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// We watch the directory; ignore unrelated files.
				if filepath.Base(event.Name) != pricingBase {
					continue
				}

				// Many editors update files via atomic rename/create, not only Write.
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					log.Printf("📝 [Pricing] Config file updated, reloading...")
					if err := pm.load(); err != nil {
						log.Printf("⚠️ [Pricing] Failed to reload pricing: %v", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ [Pricing] Watcher error: %v", err)
			}
		}
	}()

	// Watch the directory to handle file creation
	dir := filepath.Dir(pm.pricingFile)
	if err := watcher.Add(dir); err != nil {
		return watcher.Add(pm.pricingFile)
	}
	return nil
}

func validatePricing(p Pricing) error {
	check := func(name string, v int) error {
		if v <= 0 {
			return fmt.Errorf("pricing.%s must be positive", name)
		}
		if v > 1000 {
			return fmt.Errorf("pricing.%s cannot exceed 1000", name)
		}
		return nil
	}

	if err := check("questionAsked", p.QuestionAsked); err != nil {
		return err
	}
	if err := check("reportGenerated", p.ReportGenerated); err != nil {
		return err
	}
	if err := check("sourceProcessed", p.SourceProcessed); err != nil {
		return err
	}
	if err := check("imageOCR", p.ImageOCR); err != nil {
		return err
	}
	return check("liveDataRefresh", p.LiveDataRefresh)
}

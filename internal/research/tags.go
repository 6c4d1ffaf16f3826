package research

import (
	"sort"
	"strings"
)

const (
	CategoryTechnology  = "technology"
	CategoryScience     = "science"
	CategoryBusiness    = "business"
	CategoryHealth      = "health"
	CategoryPolitics    = "politics"
	CategoryEnvironment = "environment"
	CategoryEducation   = "education"
	CategorySocial      = "social"

	// TagGeneral is assigned when no category keyword occurs.
	TagGeneral = "general"

	maxTags = 3
)

var categoryKeywords = map[string][]string{
	CategoryTechnology: {
		"technology", "tech", "software", "hardware", "digital", "computer", "ai", "artificial intelligence",
		"machine learning", "data", "internet", "online", "app", "application", "device", "smartphone",
		"innovation", "programming", "code", "algorithm", "automation", "robot",
	},
	CategoryScience: {
		"science", "scientific", "research", "study", "experiment", "laboratory", "physics", "chemistry",
		"biology", "astronomy", "medicine", "medical", "discovery", "theory", "hypothesis", "evidence",
		"analysis", "observation", "quantum", "molecular", "genetic", "gene", "dna", "cell", "organism",
	},
	CategoryBusiness: {
		"business", "company", "corporation", "startup", "entrepreneur", "market", "economy", "economic",
		"finance", "financial", "investment", "investor", "stock", "trade", "commerce", "commercial",
		"industry", "industrial", "product", "service", "customer", "client", "revenue", "profit", "strategy",
	},
	CategoryHealth: {
		"health", "healthcare", "medical", "medicine", "doctor", "hospital", "patient", "treatment", "therapy",
		"disease", "illness", "condition", "symptom", "diagnosis", "prescription", "drug", "pharmaceutical",
		"wellness", "fitness", "diet", "nutrition", "mental health", "psychology", "vaccine", "immunity",
	},
	CategoryPolitics: {
		"politics", "political", "government", "policy", "law", "regulation", "legislation", "election",
		"vote", "voter", "campaign", "candidate", "president", "congress", "senate", "representative",
		"democrat", "republican", "liberal", "conservative", "party", "nation", "state", "international", "global",
	},
	CategoryEnvironment: {
		"environment", "environmental", "climate", "climate change", "global warming", "sustainability",
		"sustainable", "renewable", "energy", "pollution", "emission", "carbon", "ecosystem", "biodiversity",
		"conservation", "wildlife", "nature", "natural", "green", "eco-friendly", "recycling", "waste",
	},
	CategoryEducation: {
		"education", "educational", "school", "university", "college", "student", "teacher", "professor",
		"academic", "learning", "teaching", "curriculum", "course", "class", "lecture", "study", "knowledge",
		"skill", "training", "degree", "diploma", "certificate", "scholarship",
	},
	CategorySocial: {
		"social", "society", "community", "culture", "cultural", "people", "population", "demographic",
		"trend", "behavior", "relationship", "communication", "media", "network", "platform", "user",
		"content", "engagement", "interaction", "influence", "impact", "change", "movement",
	},
}

// AllCategories returns the categories in canonical order. Ties in tag
// scores keep this order.
func AllCategories() []string {
	return []string{
		CategoryTechnology,
		CategoryScience,
		CategoryBusiness,
		CategoryHealth,
		CategoryPolitics,
		CategoryEnvironment,
		CategoryEducation,
		CategorySocial,
	}
}

// Tags scores each category by keyword occurrences (substring counts, not
// word matches) divided by its keyword count, and returns up to three
// categories with a positive score, best first.
func Tags(text string) []string {
	lower := strings.ToLower(text)

	type scored struct {
		category string
		score    float64
	}
	var hits []scored
	for _, category := range AllCategories() {
		keywords := categoryKeywords[category]
		count := 0
		for _, kw := range keywords {
			count += strings.Count(lower, kw)
		}
		if count > 0 {
			hits = append(hits, scored{category: category, score: float64(count) / float64(len(keywords))})
		}
	}
	if len(hits) == 0 {
		return []string{TagGeneral}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > maxTags {
		hits = hits[:maxTags]
	}
	tags := make([]string, len(hits))
	for i, h := range hits {
		tags[i] = h.category
	}
	return tags
}

package rag

import "strings"

// Insight is a canned analysis request, asked like any other question.
type Insight struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Query string `json:"query"`
}

var Insights = []Insight{
	{
		Name:  "industry-overview",
		Title: "Industry Overview",
		Query: "Provide a comprehensive summary of the main industry trends and key players mentioned across all reports.",
	},
	{
		Name:  "competitor-analysis",
		Title: "Competitor Analysis",
		Query: "Identify and compare the main competitors mentioned in the reports, highlighting their strengths, weaknesses, and market positions.",
	},
	{
		Name:  "market-trends",
		Title: "Market Trends",
		Query: "What are the emerging market trends, technological advancements, and consumer behavior changes mentioned in the reports?",
	},
	{
		Name:  "key-insights",
		Title: "Key Insights",
		Query: "Extract the top 5 most important insights and actionable takeaways from all the reports.",
	},
}

// FindInsight matches name against the slug or the title, ignoring case.
func FindInsight(name string) (Insight, bool) {
	name = strings.TrimSpace(name)
	for _, in := range Insights {
		if strings.EqualFold(in.Name, name) || strings.EqualFold(in.Title, name) {
			return in, true
		}
	}
	return Insight{}, false
}

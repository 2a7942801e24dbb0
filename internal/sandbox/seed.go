package sandbox

import "github.com/IVANFROL/reklama-oleg/internal/models"

func strptr(s string) *string { return &s }

// SampleAds is the catalogue a fresh sandbox starts with.
func SampleAds() []models.Ad {
	return []models.Ad{
		{
			Title:        "New phone review",
			Description:  "A look at the new flagship phone: camera, chip and everything in between.",
			RewardAmount: 10,
			ImageURL:     strptr("https://images.unsplash.com/photo-1592750475338-74b7b21085ab?w=400&h=300&fit=crop"),
			IsActive:     true,
		},
		{
			Title:        "Programming course",
			Description:  "Learn the basics of Python in 30 days with hands-on lessons and a certificate.",
			RewardAmount: 15,
			ImageURL:     strptr("https://images.unsplash.com/photo-1461749280684-dccba630e2f6?w=400&h=300&fit=crop"),
			IsActive:     true,
		},
		{
			Title:        "Fitness app",
			Description:  "Track workouts and nutrition and stay motivated every day.",
			RewardAmount: 8,
			ImageURL:     strptr("https://images.unsplash.com/photo-1571019613454-1cb2f99b2d8b?w=400&h=300&fit=crop"),
			IsActive:     true,
		},
		{
			Title:        "Crypto investing",
			Description:  "Market analysis, strategies and risk management from experts.",
			RewardAmount: 20,
			ImageURL:     strptr("https://images.unsplash.com/photo-1639762681485-074b7f938ba0?w=400&h=300&fit=crop"),
			IsActive:     true,
		},
		{
			Title:        "Fashion store",
			Description:  "The spring collection is here. Up to 50% off and free delivery.",
			RewardAmount: 12,
			ImageURL:     strptr("https://images.unsplash.com/photo-1441986300917-64674bd600d8?w=400&h=300&fit=crop"),
			IsActive:     true,
		},
	}
}

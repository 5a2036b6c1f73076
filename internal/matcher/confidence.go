package matcher

import "wisefido-sos/internal/models"

// confidenceTable 基础置信度：由 (severity, category) 决定，不做学习
var confidenceTable = map[models.Severity]map[models.Category]float64{
	models.SeverityCritical: {
		models.CategoryMedical:  0.95,
		models.CategorySafety:   0.93,
		models.CategoryPhysical: 0.90,
		models.CategoryRequest:  0.88,
	},
	models.SeverityHigh: {
		models.CategoryMedical:  0.85,
		models.CategorySafety:   0.83,
		models.CategoryPhysical: 0.80,
		models.CategoryRequest:  0.78,
	},
	models.SeverityMedium: {
		models.CategoryMedical:  0.70,
		models.CategorySafety:   0.68,
		models.CategoryPhysical: 0.65,
		models.CategoryRequest:  0.60,
	},
}

// BaseConfidence 查表得到基础置信度，未知组合返回 0
func BaseConfidence(severity models.Severity, category models.Category) float64 {
	return confidenceTable[severity][category]
}

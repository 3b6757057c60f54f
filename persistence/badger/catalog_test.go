package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/flarexio/paperrag"
)

type catalogTestSuite struct {
	suite.Suite
	catalog paperrag.Catalog
}

func (suite *catalogTestSuite) SetupTest() {
	catalog, err := NewCatalog(paperrag.CatalogConfig{
		Enabled:  true,
		InMemory: true,
	})
	if err != nil {
		suite.FailNow(err.Error())
	}

	suite.catalog = catalog
}

func (suite *catalogTestSuite) TearDownTest() {
	suite.catalog.Close()
}

func (suite *catalogTestSuite) TestSaveAndFind() {
	doc := &paperrag.Document{
		ID:        "2407.01449v6",
		Title:     "ColPali",
		SourceURI: "https://arxiv.org/pdf/2407.01449v6",
		Path:      "/papers/2407.01449v6.pdf",
	}

	suite.NoError(suite.catalog.Save(doc))
	suite.False(doc.FetchedAt.IsZero())

	found, err := suite.catalog.Find("2407.01449v6")
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal("ColPali", found.Title)
	suite.Equal(doc.Path, found.Path)
}

func (suite *catalogTestSuite) TestSaveOverwrites() {
	doc := &paperrag.Document{ID: "2407.01449v6", Title: "draft"}
	suite.NoError(suite.catalog.Save(doc))

	doc.Title = "ColPali"
	suite.NoError(suite.catalog.Save(doc))

	docs, err := suite.catalog.List()
	suite.NoError(err)
	suite.Len(docs, 1)
	suite.Equal("ColPali", docs[0].Title)
}

func (suite *catalogTestSuite) TestFindMissing() {
	_, err := suite.catalog.Find("missing")
	suite.ErrorIs(err, paperrag.ErrDocumentNotFound)
}

func (suite *catalogTestSuite) TestSaveRequiresID() {
	suite.Error(suite.catalog.Save(&paperrag.Document{}))
}

func (suite *catalogTestSuite) TestListOrderedByFetchTime() {
	now := time.Now()

	suite.NoError(suite.catalog.Save(&paperrag.Document{ID: "b", Path: "/papers/b.pdf", FetchedAt: now}))
	suite.NoError(suite.catalog.Save(&paperrag.Document{ID: "a", Path: "/papers/a.pdf", FetchedAt: now.Add(time.Minute)}))

	docs, err := suite.catalog.List()
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Len(docs, 2)
	suite.Equal("b", docs[0].ID)
	suite.Equal("a", docs[1].ID)

	byPath, err := suite.catalog.FindByPath("/papers/a.pdf")
	suite.NoError(err)
	suite.Len(byPath, 1)
	suite.Equal("a", byPath[0].ID)
}

func (suite *catalogTestSuite) TestDelete() {
	suite.NoError(suite.catalog.Save(&paperrag.Document{ID: "a", Path: "/papers/paper.pdf"}))

	suite.NoError(suite.catalog.Delete("a"))

	_, err := suite.catalog.Find("a")
	suite.ErrorIs(err, paperrag.ErrDocumentNotFound)

	byPath, err := suite.catalog.FindByPath("/papers/paper.pdf")
	suite.NoError(err)
	suite.Empty(byPath)

	suite.ErrorIs(suite.catalog.Delete("a"), paperrag.ErrDocumentNotFound)
}

func TestCatalogTestSuite(t *testing.T) {
	suite.Run(t, new(catalogTestSuite))
}

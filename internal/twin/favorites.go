package twin

import (
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

const (
	OpFavoriteAdd    = "favorites.add"
	OpFavoriteDelete = "favorites.delete"
)

func (b *Backend) Favorites(userID int64) []shopapi.Favorite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]shopapi.Favorite(nil), b.favorites[userID]...)
}

func (b *Backend) AddFavorite(userID, productID int64) (shopapi.Favorite, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpFavoriteAdd); err != nil {
		return shopapi.Favorite{}, err
	}
	if _, ok := b.products[productID]; !ok {
		return shopapi.Favorite{}, badRequest("product: Invalid pk - object does not exist.")
	}
	for _, f := range b.favorites[userID] {
		if f.ProductID == productID {
			return shopapi.Favorite{}, badRequest("The fields user, product must make a unique set.")
		}
	}
	fav := shopapi.Favorite{ID: b.nextID(), ProductID: productID, CreatedAt: b.now().UTC()}
	b.favorites[userID] = append(b.favorites[userID], fav)
	return fav, nil
}

func (b *Backend) DeleteFavoriteByProduct(userID, productID int64) error {
	return b.deleteFavorite(userID, func(f shopapi.Favorite) bool { return f.ProductID == productID })
}

func (b *Backend) DeleteFavorite(userID, favoriteID int64) error {
	return b.deleteFavorite(userID, func(f shopapi.Favorite) bool { return f.ID == favoriteID })
}

func (b *Backend) deleteFavorite(userID int64, match func(shopapi.Favorite) bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpFavoriteDelete); err != nil {
		return err
	}
	favs := b.favorites[userID]
	for i, f := range favs {
		if match(f) {
			b.favorites[userID] = append(favs[:i], favs[i+1:]...)
			return nil
		}
	}
	return notFound()
}
